package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/pkg/jwtutil"
	xerrors "payauth-service/pkg/xerrors"

	"go.uber.org/zap"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session // by token
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (m *memSessionRepo) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	return nil
}

func (m *memSessionRepo) GetByToken(_ context.Context, token string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return s, nil
}

func (m *memSessionRepo) ListByAccount(_ context.Context, accountID string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSessionRepo) Revoke(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return xerrors.ErrNotFound
	}
	s.IsRevoked = true
	return nil
}

func (m *memSessionRepo) RevokeAllByAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AccountID == accountID {
			s.IsRevoked = true
		}
	}
	return nil
}

func (m *memSessionRepo) UpdateLastSeen(_ context.Context, _ string) error { return nil }

func (m *memSessionRepo) DeleteByAccount(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for token, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, token)
		}
	}
	return nil
}

func newSessionFixture(t *testing.T, ttl time.Duration) (*SessionUsecase, *memSessionRepo) {
	t.Helper()
	key, err := jwtutil.GenerateEphemeralKey()
	if err != nil {
		t.Fatal(err)
	}
	gen := jwtutil.NewGenerator(key, "payauth-test", "payauth-clients", "k1", ttl)
	ver := jwtutil.NewVerifier(&key.PublicKey, "payauth-test", "payauth-clients")
	repo := newMemSessionRepo()
	return NewSessionUsecase(repo, gen, ver, zap.NewNop()), repo
}

func TestIssueAndValidate(t *testing.T) {
	uc, _ := newSessionFixture(t, time.Hour)

	session, token, err := uc.Issue(context.Background(), "acct_1", domain.DeviceInfo{DeviceID: "phone-1"})
	if err != nil {
		t.Fatal(err)
	}
	if token == "" || session.AccountID != "acct_1" {
		t.Fatalf("session = %+v", session)
	}

	got, err := uc.Validate(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != session.ID {
		t.Fatalf("validated wrong session: %s vs %s", got.ID, session.ID)
	}
}

func TestValidateRejectsGarbageToken(t *testing.T) {
	uc, _ := newSessionFixture(t, time.Hour)

	_, err := uc.Validate(context.Background(), "not.a.jwt")
	if !errors.Is(err, xerrors.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsRevokedSession(t *testing.T) {
	uc, _ := newSessionFixture(t, time.Hour)

	_, token, err := uc.Issue(context.Background(), "acct_1", domain.DeviceInfo{})
	if err != nil {
		t.Fatal(err)
	}
	if err := uc.Revoke(context.Background(), token); err != nil {
		t.Fatal(err)
	}

	// The JWT itself is still signed and unexpired; revocation wins.
	_, err = uc.Validate(context.Background(), token)
	if !errors.Is(err, xerrors.ErrSessionRevoked) {
		t.Fatalf("err = %v, want ErrSessionRevoked", err)
	}
}

func TestRevokeAllInvalidatesEveryDevice(t *testing.T) {
	uc, _ := newSessionFixture(t, time.Hour)

	_, token1, err := uc.Issue(context.Background(), "acct_1", domain.DeviceInfo{DeviceID: "phone"})
	if err != nil {
		t.Fatal(err)
	}
	_, token2, err := uc.Issue(context.Background(), "acct_1", domain.DeviceInfo{DeviceID: "laptop"})
	if err != nil {
		t.Fatal(err)
	}
	_, other, err := uc.Issue(context.Background(), "acct_2", domain.DeviceInfo{})
	if err != nil {
		t.Fatal(err)
	}

	if err := uc.RevokeAll(context.Background(), "acct_1"); err != nil {
		t.Fatal(err)
	}

	for _, token := range []string{token1, token2} {
		if _, err := uc.Validate(context.Background(), token); !errors.Is(err, xerrors.ErrSessionRevoked) {
			t.Fatalf("err = %v, want ErrSessionRevoked", err)
		}
	}
	if _, err := uc.Validate(context.Background(), other); err != nil {
		t.Fatalf("other account affected: %v", err)
	}
}
