package usecase

import (
	"context"
	"errors"
	"time"

	"payauth-service/pkg/cache"

	"github.com/redis/go-redis/v9"
)

// FreshnessWindow is how long a password confirmation stays valid for
// sensitive credential-store operations.
const FreshnessWindow = 5 * time.Minute

const freshnessNamespace = "fresh_auth"

// FreshnessStore records recent password confirmations per session so that
// credential changes can demand a fresh proof rather than just a live token.
type FreshnessStore interface {
	MarkFresh(ctx context.Context, sessionID string) error
	IsFresh(ctx context.Context, sessionID string) (bool, error)
}

type redisFreshnessStore struct {
	cache *cache.Cache
}

func NewRedisFreshnessStore(c *cache.Cache) FreshnessStore {
	return &redisFreshnessStore{cache: c}
}

func (s *redisFreshnessStore) MarkFresh(ctx context.Context, sessionID string) error {
	return s.cache.Set(ctx, freshnessNamespace, sessionID, "1", FreshnessWindow)
}

func (s *redisFreshnessStore) IsFresh(ctx context.Context, sessionID string) (bool, error) {
	_, err := s.cache.Get(ctx, freshnessNamespace, sessionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
