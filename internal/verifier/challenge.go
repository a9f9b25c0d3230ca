package verifier

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payauth-service/pkg/cache"
	xerrors "payauth-service/pkg/xerrors"

	"github.com/redis/go-redis/v9"
)

// Challenge is a fresh, unpredictable value the authenticator must sign.
// Single use: consuming it removes it, which is the replay prevention.
type Challenge struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Nonce     string `json:"nonce"`
}

type ChallengeStore interface {
	Issue(ctx context.Context, accountID string, ttl time.Duration) (*Challenge, error)
	Consume(ctx context.Context, challengeID string) (*Challenge, error)
}

const challengeNamespace = "devicekey_challenges"

// RedisChallengeStore keeps issued challenges in redis with the ceremony TTL
// so a hung capture can never be completed later.
type RedisChallengeStore struct {
	cache *cache.Cache
}

func NewRedisChallengeStore(c *cache.Cache) *RedisChallengeStore {
	return &RedisChallengeStore{cache: c}
}

func (s *RedisChallengeStore) Issue(ctx context.Context, accountID string, ttl time.Duration) (*Challenge, error) {
	ch := &Challenge{
		ID:        randomHex(16),
		AccountID: accountID,
		Nonce:     randomHex(32),
	}
	payload, err := json.Marshal(ch)
	if err != nil {
		return nil, fmt.Errorf("marshal challenge: %w", err)
	}
	if err := s.cache.Set(ctx, challengeNamespace, ch.ID, payload, ttl); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	return ch, nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, challengeID string) (*Challenge, error) {
	payload, err := s.cache.GetDel(ctx, challengeNamespace, challengeID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, xerrors.ErrChallengeExpired
		}
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	var ch Challenge
	if err := json.Unmarshal([]byte(payload), &ch); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return &ch, nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
