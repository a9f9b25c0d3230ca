package usecase

import (
	"context"
	"fmt"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/internal/events"
	"payauth-service/internal/repository"
	xerrors "payauth-service/pkg/xerrors"

	"go.uber.org/zap"
)

// AttemptAuthorizer is the precondition gate between verification and money
// movement. Satisfied by AuthorizeUsecase.
type AttemptAuthorizer interface {
	Authorized(attemptID, accountID string, amount int64) (*domain.AuthorizationAttempt, error)
}

// SettlementQueue receives committed card-rail records for out-of-band
// confirmation.
type SettlementQueue interface {
	Enqueue(rec *domain.TransactionRecord)
}

// TransactionUsecase ties authorization to the ledger: no debit commits
// without a succeeded attempt covering the exact amount, and the attempt id
// doubles as the idempotency key so a retried commit can never double-spend.
type TransactionUsecase struct {
	ledger      repository.LedgerRepository
	authorizer  AttemptAuthorizer
	settlements SettlementQueue
	publisher   events.Publisher
	logger      *zap.Logger
}

func NewTransactionUsecase(
	ledger repository.LedgerRepository,
	authorizer AttemptAuthorizer,
	settlements SettlementQueue,
	publisher events.Publisher,
	logger *zap.Logger,
) *TransactionUsecase {
	return &TransactionUsecase{
		ledger:      ledger,
		authorizer:  authorizer,
		settlements: settlements,
		publisher:   publisher,
		logger:      logger,
	}
}

func directionFor(t domain.TransactionType) domain.Direction {
	switch t {
	case domain.TransactionTypeAddMoney, domain.TransactionTypeRefund:
		return domain.DirectionCredit
	default:
		return domain.DirectionDebit
	}
}

// Commit applies an authorized payment action. The attempt must have
// succeeded for this account and amount; its id becomes the idempotency key,
// so resubmitting the same attempt returns the original record.
func (u *TransactionUsecase) Commit(ctx context.Context, accountID, attemptID string, txType domain.TransactionType, amount int64, description string, counterpartyID *string) (*domain.TransactionRecord, error) {
	if !txType.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", xerrors.ErrInvalidRequest, txType)
	}

	attempt, err := u.authorizer.Authorized(attemptID, accountID, amount)
	if err != nil {
		return nil, err
	}

	req := &domain.CommitRequest{
		AccountID:      accountID,
		Amount:         amount,
		Direction:      directionFor(txType),
		Type:           txType,
		Description:    description,
		AuthMethod:     string(attempt.Method),
		IdempotencyKey: attemptID,
		CounterpartyID: counterpartyID,
	}

	rec, err := u.ledger.Commit(ctx, req)
	if err != nil {
		return nil, err
	}
	u.afterCommit(ctx, rec)
	return rec, nil
}

// TopUp credits the account without an authorization attempt. It is the one
// unauthenticated-method commit the ledger accepts, and the caller must
// supply its own idempotency key because there is no attempt id to reuse.
func (u *TransactionUsecase) TopUp(ctx context.Context, accountID string, amount int64, idempotencyKey, description string) (*domain.TransactionRecord, error) {
	req := &domain.CommitRequest{
		AccountID:      accountID,
		Amount:         amount,
		Direction:      domain.DirectionCredit,
		Type:           domain.TransactionTypeAddMoney,
		Description:    description,
		IdempotencyKey: idempotencyKey,
	}

	rec, err := u.ledger.Commit(ctx, req)
	if err != nil {
		return nil, err
	}
	u.afterCommit(ctx, rec)
	return rec, nil
}

func (u *TransactionUsecase) afterCommit(ctx context.Context, rec *domain.TransactionRecord) {
	if err := u.publisher.PublishTransaction(ctx, events.TransactionEvent{
		RecordID:   rec.ID,
		AccountID:  rec.AccountID,
		Type:       rec.Type,
		Amount:     rec.Amount,
		Direction:  rec.Direction,
		Status:     rec.Status,
		AuthMethod: rec.AuthMethod,
		OccurredAt: time.Now(),
	}); err != nil {
		// Event delivery is best effort; the ledger already holds the truth.
		u.logger.Warn("transaction event not published", zap.String("record_id", rec.ID), zap.Error(err))
	}

	if rec.Status == domain.StatusCompleted && rec.Type.ExternallySettled() {
		u.settlements.Enqueue(rec)
	}

	u.logger.Info("transaction committed",
		zap.String("record_id", rec.ID),
		zap.String("account_id", rec.AccountID),
		zap.String("type", string(rec.Type)),
		zap.Int64("amount", rec.Amount),
		zap.String("status", string(rec.Status)),
	)
}

// Get returns one record, scoped to the owning account.
func (u *TransactionUsecase) Get(ctx context.Context, accountID, recordID string) (*domain.TransactionRecord, error) {
	rec, err := u.ledger.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.AccountID != accountID {
		return nil, xerrors.ErrNotFound
	}
	return rec, nil
}

func (u *TransactionUsecase) History(ctx context.Context, accountID string, limit int) ([]*domain.TransactionRecord, error) {
	return u.ledger.ListByAccount(ctx, accountID, limit)
}
