package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"payauth-service/internal/domain"
	"payauth-service/internal/events"
	xerrors "payauth-service/pkg/xerrors"

	"go.uber.org/zap"
)

// stubAuthorizer plays the coordinator role with a fixed set of succeeded
// attempts.
type stubAuthorizer struct {
	attempts map[string]*domain.AuthorizationAttempt
}

func (s *stubAuthorizer) Authorized(attemptID, accountID string, amount int64) (*domain.AuthorizationAttempt, error) {
	a, ok := s.attempts[attemptID]
	if !ok {
		return nil, xerrors.ErrAttemptNotFound
	}
	if a.AccountID != accountID {
		return nil, xerrors.ErrForbidden
	}
	if a.State != domain.StateSucceeded {
		return nil, xerrors.ErrAttemptNotAuthorized
	}
	if a.Amount != amount {
		return nil, xerrors.ErrAmountMismatch
	}
	return a, nil
}

func succeededAttempt(id, accountID string, amount int64, method domain.CredentialType) *domain.AuthorizationAttempt {
	return &domain.AuthorizationAttempt{
		ID:        id,
		AccountID: accountID,
		Amount:    amount,
		State:     domain.StateSucceeded,
		Method:    method,
		Assurance: method.Assurance(),
	}
}

type txFixture struct {
	uc     *TransactionUsecase
	ledger *memLedger
	queue  *recordingQueue
	auth   *stubAuthorizer
}

func newTxFixture(balances map[string]int64) *txFixture {
	ledger := newMemLedger(balances)
	queue := &recordingQueue{}
	auth := &stubAuthorizer{attempts: make(map[string]*domain.AuthorizationAttempt)}
	uc := NewTransactionUsecase(ledger, auth, queue, events.NopPublisher{}, zap.NewNop())
	return &txFixture{uc: uc, ledger: ledger, queue: queue, auth: auth}
}

func TestCommitRequiresSucceededAttempt(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 10000})

	_, err := f.uc.Commit(context.Background(), "acct_1", "att_missing", domain.TransactionTypePayment, 5000, "", nil)
	if !errors.Is(err, xerrors.ErrAttemptNotFound) {
		t.Fatalf("err = %v, want ErrAttemptNotFound", err)
	}

	f.auth.attempts["att_pending"] = &domain.AuthorizationAttempt{
		ID: "att_pending", AccountID: "acct_1", Amount: 5000, State: domain.StateVerifying,
	}
	_, err = f.uc.Commit(context.Background(), "acct_1", "att_pending", domain.TransactionTypePayment, 5000, "", nil)
	if !errors.Is(err, xerrors.ErrAttemptNotAuthorized) {
		t.Fatalf("err = %v, want ErrAttemptNotAuthorized", err)
	}
}

func TestCommitPaymentDebitsAndEnqueuesSettlement(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 10000})
	f.auth.attempts["att_1"] = succeededAttempt("att_1", "acct_1", 6000, domain.CredentialFace)

	rec, err := f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypePayment, 6000, "electronics", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", rec.Status)
	}
	if rec.BalanceBefore != 10000 || rec.BalanceAfter != 4000 {
		t.Fatalf("balances = %d -> %d", rec.BalanceBefore, rec.BalanceAfter)
	}
	if rec.AuthMethod != string(domain.CredentialFace) {
		t.Fatalf("auth method = %q", rec.AuthMethod)
	}
	if f.ledger.balances["acct_1"] != 4000 {
		t.Fatalf("account balance = %d", f.ledger.balances["acct_1"])
	}
	// Card-rail payments go to the settlement worker.
	if f.queue.count() != 1 {
		t.Fatalf("settlement enqueues = %d, want 1", f.queue.count())
	}
}

func TestCommitTransferMovesFundsBothSides(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 10000, "acct_2": 500})
	f.auth.attempts["att_1"] = succeededAttempt("att_1", "acct_1", 3000, domain.CredentialPIN)

	cp := "acct_2"
	rec, err := f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypeTransfer, 3000, "rent split", &cp)
	if err != nil {
		t.Fatal(err)
	}
	if f.ledger.balances["acct_1"] != 7000 || f.ledger.balances["acct_2"] != 3500 {
		t.Fatalf("balances = %d / %d", f.ledger.balances["acct_1"], f.ledger.balances["acct_2"])
	}
	if rec.Direction != domain.DirectionDebit {
		t.Fatalf("direction = %s", rec.Direction)
	}
	// Internal transfers do not hit the card rail.
	if f.queue.count() != 0 {
		t.Fatalf("settlement enqueues = %d, want 0", f.queue.count())
	}

	// Counterparty got a mirror record.
	mirror, err := f.ledger.GetByIdempotencyKey(context.Background(), "att_1:credit")
	if err != nil {
		t.Fatal(err)
	}
	if mirror.AccountID != "acct_2" || mirror.Direction != domain.DirectionCredit || mirror.Amount != 3000 {
		t.Fatalf("mirror = %+v", mirror)
	}
}

func TestCommitInsufficientBalance(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 100})
	f.auth.attempts["att_1"] = succeededAttempt("att_1", "acct_1", 5000, domain.CredentialPIN)

	_, err := f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypePayment, 5000, "", nil)
	if !errors.Is(err, xerrors.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if f.ledger.balances["acct_1"] != 100 {
		t.Fatalf("balance mutated on shortfall: %d", f.ledger.balances["acct_1"])
	}

	// A failed audit record was still written.
	rec, err := f.ledger.GetByIdempotencyKey(context.Background(), "att_1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != domain.StatusFailed {
		t.Fatalf("audit record status = %s", rec.Status)
	}
}

func TestCommitShortfallReplayStaysFailed(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 100})
	f.auth.attempts["att_1"] = succeededAttempt("att_1", "acct_1", 5000, domain.CredentialPIN)

	_, err := f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypePayment, 5000, "", nil)
	if !errors.Is(err, xerrors.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	// A retry on the same key must replay the original outcome, not hand
	// back the failed audit record as a success.
	_, err = f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypePayment, 5000, "", nil)
	if !errors.Is(err, xerrors.ErrInsufficientBalance) {
		t.Fatalf("replay err = %v, want ErrInsufficientBalance", err)
	}
	if f.ledger.balances["acct_1"] != 100 {
		t.Fatalf("balance = %d, want 100", f.ledger.balances["acct_1"])
	}
	if f.queue.count() != 0 {
		t.Fatalf("settlement enqueues = %d, want 0", f.queue.count())
	}
}

func TestCommitIsIdempotentOnAttemptID(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 10000})
	f.auth.attempts["att_1"] = succeededAttempt("att_1", "acct_1", 2000, domain.CredentialTOTP)

	first, err := f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypeBillPayment, 2000, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypeBillPayment, 2000, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay returned a different record: %s vs %s", first.ID, second.ID)
	}
	if f.ledger.balances["acct_1"] != 8000 {
		t.Fatalf("balance = %d, debit applied more than once", f.ledger.balances["acct_1"])
	}
}

func TestConcurrentCommitsApplyOnce(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 10000})
	f.auth.attempts["att_1"] = succeededAttempt("att_1", "acct_1", 2000, domain.CredentialPIN)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypePayment, 2000, "", nil)
		}()
	}
	wg.Wait()

	if f.ledger.balances["acct_1"] != 8000 {
		t.Fatalf("balance = %d, want 8000", f.ledger.balances["acct_1"])
	}
}

func TestConcurrentDebitsExactBalanceOneWins(t *testing.T) {
	const n = 8
	f := newTxFixture(map[string]int64{"acct_1": 2000})

	// N independent authorized attempts all covering the full balance.
	for i := 0; i < n; i++ {
		id := "att_" + string(rune('a'+i))
		f.auth.attempts[id] = succeededAttempt(id, "acct_1", 2000, domain.CredentialPIN)
	}

	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		id := "att_" + string(rune('a'+i))
		wg.Add(1)
		go func(attemptID string) {
			defer wg.Done()
			_, err := f.uc.Commit(context.Background(), "acct_1", attemptID, domain.TransactionTypePayment, 2000, "", nil)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var succeeded, short int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, xerrors.ErrInsufficientBalance):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || short != n-1 {
		t.Fatalf("succeeded = %d short = %d, want 1 and %d", succeeded, short, n-1)
	}
	if f.ledger.balances["acct_1"] != 0 {
		t.Fatalf("balance = %d, want 0", f.ledger.balances["acct_1"])
	}
}

func TestTopUpCreditsWithoutAttempt(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 0})

	rec, err := f.uc.TopUp(context.Background(), "acct_1", 5000, "topup-key-1", "card load")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Direction != domain.DirectionCredit || rec.Type != domain.TransactionTypeAddMoney {
		t.Fatalf("rec = %+v", rec)
	}
	if f.ledger.balances["acct_1"] != 5000 {
		t.Fatalf("balance = %d", f.ledger.balances["acct_1"])
	}
	if f.queue.count() != 0 {
		t.Fatal("top-up must not enqueue settlement")
	}

	// Replay on the caller key.
	again, err := f.uc.TopUp(context.Background(), "acct_1", 5000, "topup-key-1", "card load")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != rec.ID || f.ledger.balances["acct_1"] != 5000 {
		t.Fatalf("replayed top-up applied twice: balance = %d", f.ledger.balances["acct_1"])
	}
}

func TestGetScopesToOwner(t *testing.T) {
	f := newTxFixture(map[string]int64{"acct_1": 10000})
	f.auth.attempts["att_1"] = succeededAttempt("att_1", "acct_1", 1000, domain.CredentialPIN)

	rec, err := f.uc.Commit(context.Background(), "acct_1", "att_1", domain.TransactionTypePayment, 1000, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.uc.Get(context.Background(), "acct_1", rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.uc.Get(context.Background(), "acct_2", rec.ID); !errors.Is(err, xerrors.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
