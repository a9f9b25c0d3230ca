package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/internal/verifier"
	xerrors "payauth-service/pkg/xerrors"
)

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
}

func (f *fakeAccountRepo) Create(_ context.Context, a *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Email == a.Email {
			return xerrors.ErrAccountAlreadyExists
		}
	}
	f.accounts[a.ID] = a
	return nil
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return nil, xerrors.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, xerrors.ErrAccountNotFound
}

func (f *fakeAccountRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (f *fakeAccountRepo) UpdatePINHash(_ context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[id]
	if !ok {
		return xerrors.ErrAccountNotFound
	}
	a.PINHash = &hash
	return nil
}

func (f *fakeAccountRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return xerrors.ErrAccountNotFound
	}
	delete(f.accounts, id)
	return nil
}

type fakeCredRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
}

func newFakeCredRepo() *fakeCredRepo {
	return &fakeCredRepo{creds: make(map[string]*domain.Credential)}
}

func (f *fakeCredRepo) Create(_ context.Context, c *domain.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.creds {
		if existing.AccountID == c.AccountID && existing.Type == c.Type && existing.IsActive && c.IsActive {
			return xerrors.ErrDuplicateCredential
		}
	}
	f.creds[c.ID] = c
	return nil
}

func (f *fakeCredRepo) GetByID(_ context.Context, id string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return c, nil
}

func (f *fakeCredRepo) ListByAccount(_ context.Context, accountID string) ([]*domain.Credential, error) {
	return f.list(accountID, false), nil
}

func (f *fakeCredRepo) ListActiveByAccount(_ context.Context, accountID string) ([]*domain.Credential, error) {
	return f.list(accountID, true), nil
}

func (f *fakeCredRepo) list(accountID string, activeOnly bool) []*domain.Credential {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Credential
	for _, c := range f.creds {
		if c.AccountID != accountID {
			continue
		}
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *fakeCredRepo) GetActiveByType(_ context.Context, accountID string, t domain.CredentialType) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.creds {
		if c.AccountID == accountID && c.Type == t && c.IsActive {
			return c, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeCredRepo) SetActive(_ context.Context, id string, active bool) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	if active && !c.IsActive {
		for _, other := range f.creds {
			if other.ID != c.ID && other.AccountID == c.AccountID && other.Type == c.Type && other.IsActive {
				return nil, xerrors.ErrDuplicateCredential
			}
		}
	}
	c.IsActive = active
	return c, nil
}

func (f *fakeCredRepo) UpdateLabel(_ context.Context, id, label string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	c.Label = label
	return c, nil
}

func (f *fakeCredRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.creds[id]; !ok {
		return xerrors.ErrNotFound
	}
	delete(f.creds, id)
	return nil
}

func (f *fakeCredRepo) DeleteByAccount(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.creds {
		if c.AccountID == accountID {
			delete(f.creds, id)
		}
	}
	return nil
}

func (f *fakeCredRepo) TouchLastUsed(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	now := time.Now()
	c.LastUsedAt = &now
	return nil
}

// memFreshness marks sessions fresh in memory.
type memFreshness struct {
	mu    sync.Mutex
	fresh map[string]bool
}

func newMemFreshness() *memFreshness {
	return &memFreshness{fresh: make(map[string]bool)}
}

func (m *memFreshness) MarkFresh(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fresh[sessionID] = true
	return nil
}

func (m *memFreshness) IsFresh(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fresh[sessionID], nil
}

// memChallengeStore mirrors the single-use consume semantics of the redis
// store.
type memChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*verifier.Challenge
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{challenges: make(map[string]*verifier.Challenge)}
}

func (s *memChallengeStore) Issue(_ context.Context, accountID string, _ time.Duration) (*verifier.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := &verifier.Challenge{ID: testRandomHex(8), AccountID: accountID, Nonce: testRandomHex(16)}
	s.challenges[ch.ID] = ch
	return ch, nil
}

func (s *memChallengeStore) Consume(_ context.Context, challengeID string) (*verifier.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.challenges[challengeID]
	if !ok {
		return nil, xerrors.ErrChallengeExpired
	}
	delete(s.challenges, challengeID)
	return ch, nil
}

func testRandomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// memLedger applies the same commit semantics as the SQL repository against
// in-memory balances: idempotent on key, funds re-checked under the lock,
// failed audit record on shortfall, mirror record for transfers.
type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	byKey    map[string]*domain.TransactionRecord
	byID     map[string]*domain.TransactionRecord
	seq      int
}

func newMemLedger(balances map[string]int64) *memLedger {
	if balances == nil {
		balances = make(map[string]int64)
	}
	return &memLedger{
		balances: balances,
		byKey:    make(map[string]*domain.TransactionRecord),
		byID:     make(map[string]*domain.TransactionRecord),
	}
}

func (l *memLedger) nextID() string {
	l.seq++
	return "txn_" + hex.EncodeToString([]byte{byte(l.seq >> 8), byte(l.seq)})
}

func (l *memLedger) Commit(_ context.Context, req *domain.CommitRequest) (*domain.TransactionRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byKey[req.IdempotencyKey]; ok {
		if existing.Status == domain.StatusFailed {
			return nil, xerrors.ErrInsufficientBalance
		}
		return existing, nil
	}

	if _, ok := l.balances[req.AccountID]; !ok {
		return nil, xerrors.ErrAccountNotFound
	}

	now := time.Now()
	before := l.balances[req.AccountID]

	if req.Direction == domain.DirectionDebit && before < req.Amount {
		rec := &domain.TransactionRecord{
			ID: l.nextID(), AccountID: req.AccountID, Type: req.Type,
			Amount: req.Amount, Direction: req.Direction,
			Status: domain.StatusFailed, AuthMethod: req.AuthMethod,
			BalanceBefore: before, BalanceAfter: before,
			IdempotencyKey: req.IdempotencyKey, CreatedAt: now,
			StatusHistory: []domain.StatusChange{
				{Status: domain.StatusFailed, Timestamp: now, Reason: "insufficient_balance"},
			},
		}
		l.byKey[req.IdempotencyKey] = rec
		l.byID[rec.ID] = rec
		return nil, xerrors.ErrInsufficientBalance
	}

	after := before + req.SignedAmount()
	l.balances[req.AccountID] = after

	rec := &domain.TransactionRecord{
		ID: l.nextID(), AccountID: req.AccountID, Type: req.Type,
		Amount: req.Amount, Direction: req.Direction,
		Status: domain.StatusCompleted, AuthMethod: req.AuthMethod,
		Description: req.Description, BalanceBefore: before, BalanceAfter: after,
		IdempotencyKey: req.IdempotencyKey, CounterpartyID: req.CounterpartyID,
		CreatedAt: now, CompletedAt: &now,
		StatusHistory: []domain.StatusChange{
			{Status: domain.StatusPending, Timestamp: now},
			{Status: domain.StatusCompleted, Timestamp: now},
		},
	}
	l.byKey[req.IdempotencyKey] = rec
	l.byID[rec.ID] = rec

	if req.CounterpartyID != nil {
		cpID := *req.CounterpartyID
		cpBefore := l.balances[cpID]
		cpAfter := cpBefore + req.Amount
		l.balances[cpID] = cpAfter
		mirror := &domain.TransactionRecord{
			ID: l.nextID(), AccountID: cpID, Type: domain.TransactionTypeTransfer,
			Amount: req.Amount, Direction: domain.DirectionCredit,
			Status: domain.StatusCompleted, AuthMethod: req.AuthMethod,
			BalanceBefore: cpBefore, BalanceAfter: cpAfter,
			IdempotencyKey: req.IdempotencyKey + ":credit",
			CounterpartyID: &req.AccountID, CreatedAt: now, CompletedAt: &now,
		}
		l.byKey[mirror.IdempotencyKey] = mirror
		l.byID[mirror.ID] = mirror
	}
	return rec, nil
}

func (l *memLedger) GetByID(_ context.Context, id string) (*domain.TransactionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return rec, nil
}

func (l *memLedger) GetByIdempotencyKey(_ context.Context, key string) (*domain.TransactionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byKey[key]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return rec, nil
}

func (l *memLedger) ListByAccount(_ context.Context, accountID string, _ int) ([]*domain.TransactionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.TransactionRecord
	for _, rec := range l.byID {
		if rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *memLedger) AppendStatusHistory(_ context.Context, id string, change domain.StatusChange) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	rec.StatusHistory = append(rec.StatusHistory, change)
	return nil
}

// recordingQueue captures settlement enqueues.
type recordingQueue struct {
	mu   sync.Mutex
	recs []*domain.TransactionRecord
}

func (q *recordingQueue) Enqueue(rec *domain.TransactionRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = append(q.recs, rec)
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.recs)
}
