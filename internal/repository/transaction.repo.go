package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/pkg/id"
	xerrors "payauth-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository applies balance mutations and writes the immutable audit
// record as one atomic unit. Commit is idempotent on the caller-supplied key:
// a replay returns the original record without touching the balance again.
type LedgerRepository interface {
	Commit(ctx context.Context, req *domain.CommitRequest) (*domain.TransactionRecord, error)
	GetByID(ctx context.Context, id string) (*domain.TransactionRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionRecord, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TransactionRecord, error)
	AppendStatusHistory(ctx context.Context, id string, change domain.StatusChange) error
}

type ledgerRepo struct {
	db *pgxpool.Pool
	sf *id.Snowflake
}

func NewLedgerRepository(db *pgxpool.Pool, sf *id.Snowflake) LedgerRepository {
	return &ledgerRepo{db: db, sf: sf}
}

func (r *ledgerRepo) Commit(ctx context.Context, req *domain.CommitRequest) (*domain.TransactionRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Fast path: already processed. Replays resolve the same way the
	// original call did, so a failed audit record surfaces as the original
	// shortfall error, never as a fresh success.
	if _, err := r.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
		return r.replay(ctx, req.IdempotencyKey)
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock account rows in deterministic order to prevent deadlocks when two
	// transfers touch the same pair of accounts concurrently.
	lockOrder := []string{req.AccountID}
	if req.CounterpartyID != nil {
		lockOrder = append(lockOrder, *req.CounterpartyID)
		if lockOrder[0] > lockOrder[1] {
			lockOrder[0], lockOrder[1] = lockOrder[1], lockOrder[0]
		}
	}

	balances := make(map[string]int64, len(lockOrder))
	for _, accountID := range lockOrder {
		var balance int64
		err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("account %s: %w", accountID, xerrors.ErrAccountNotFound)
			}
			return nil, fmt.Errorf("lock account %s: %w", accountID, err)
		}
		balances[accountID] = balance
	}

	now := time.Now()
	balanceBefore := balances[req.AccountID]

	// Re-check funds under the lock. On shortfall a failed record is written
	// for audit and the balance stays untouched.
	if req.Direction == domain.DirectionDebit && balanceBefore < req.Amount {
		rec := r.newRecord(req, domain.StatusFailed, balanceBefore, balanceBefore, now)
		rec.StatusHistory = append(rec.StatusHistory, domain.StatusChange{
			Status: domain.StatusFailed, Timestamp: now, Reason: "insufficient_balance",
		})
		if err := r.insertRecord(ctx, tx, rec); err != nil {
			if errors.Is(err, xerrors.ErrDuplicateIdempotencyKey) {
				return r.replay(ctx, req.IdempotencyKey)
			}
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return nil, xerrors.ErrInsufficientBalance
	}

	balanceAfter := balanceBefore + req.SignedAmount()
	if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		balanceAfter, now, req.AccountID); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	rec := r.newRecord(req, domain.StatusCompleted, balanceBefore, balanceAfter, now)
	rec.StatusHistory = append(rec.StatusHistory,
		domain.StatusChange{Status: domain.StatusPending, Timestamp: now},
		domain.StatusChange{Status: domain.StatusCompleted, Timestamp: now},
	)
	rec.CompletedAt = &now
	if err := r.insertRecord(ctx, tx, rec); err != nil {
		if errors.Is(err, xerrors.ErrDuplicateIdempotencyKey) {
			return r.replay(ctx, req.IdempotencyKey)
		}
		return nil, err
	}

	// Transfer: credit the counterparty inside the same unit and mirror the
	// record on their side.
	if req.CounterpartyID != nil {
		cpID := *req.CounterpartyID
		cpBefore := balances[cpID]
		cpAfter := cpBefore + req.Amount
		if _, err := tx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
			cpAfter, now, cpID); err != nil {
			return nil, fmt.Errorf("update counterparty balance: %w", err)
		}

		mirror := &domain.TransactionRecord{
			ID:             r.sf.Generate(),
			AccountID:      cpID,
			Type:           domain.TransactionTypeTransfer,
			Amount:         req.Amount,
			Direction:      domain.DirectionCredit,
			Status:         domain.StatusCompleted,
			AuthMethod:     req.AuthMethod,
			Description:    req.Description,
			BalanceBefore:  cpBefore,
			BalanceAfter:   cpAfter,
			IdempotencyKey: req.IdempotencyKey + ":credit",
			CounterpartyID: &req.AccountID,
			CreatedAt:      now,
			CompletedAt:    &now,
			StatusHistory: []domain.StatusChange{
				{Status: domain.StatusPending, Timestamp: now},
				{Status: domain.StatusCompleted, Timestamp: now},
			},
		}
		if err := r.insertRecord(ctx, tx, mirror); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

func (r *ledgerRepo) newRecord(req *domain.CommitRequest, status domain.TransactionStatus, before, after int64, now time.Time) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:             r.sf.Generate(),
		AccountID:      req.AccountID,
		Type:           req.Type,
		Amount:         req.Amount,
		Direction:      req.Direction,
		Status:         status,
		AuthMethod:     req.AuthMethod,
		Description:    req.Description,
		BalanceBefore:  before,
		BalanceAfter:   after,
		IdempotencyKey: req.IdempotencyKey,
		CounterpartyID: req.CounterpartyID,
		CreatedAt:      now,
	}
}

func (r *ledgerRepo) insertRecord(ctx context.Context, tx pgx.Tx, rec *domain.TransactionRecord) error {
	history, err := json.Marshal(rec.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (
			id, account_id, type, amount, direction, status, status_history,
			auth_method, description, balance_before, balance_after,
			idempotency_key, counterparty_id, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, rec.ID, rec.AccountID, rec.Type, rec.Amount, rec.Direction, rec.Status, history,
		rec.AuthMethod, rec.Description, rec.BalanceBefore, rec.BalanceAfter,
		rec.IdempotencyKey, rec.CounterpartyID, rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert transaction record: %w", err)
	}
	return nil
}

// replay resolves a lost race on the idempotency key: another request already
// committed this instruction, so return what it wrote.
func (r *ledgerRepo) replay(ctx context.Context, key string) (*domain.TransactionRecord, error) {
	rec, err := r.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("replay idempotency key: %w", err)
	}
	if rec.Status == domain.StatusFailed {
		return nil, xerrors.ErrInsufficientBalance
	}
	return rec, nil
}

const transactionColumns = `id, account_id, type, amount, direction, status, status_history,
	auth_method, description, balance_before, balance_after, idempotency_key,
	counterparty_id, created_at, completed_at`

func scanRecord(row pgx.Row) (*domain.TransactionRecord, error) {
	var rec domain.TransactionRecord
	var history []byte
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.Type, &rec.Amount, &rec.Direction,
		&rec.Status, &history, &rec.AuthMethod, &rec.Description,
		&rec.BalanceBefore, &rec.BalanceAfter, &rec.IdempotencyKey,
		&rec.CounterpartyID, &rec.CreatedAt, &rec.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &rec.StatusHistory); err != nil {
			return nil, fmt.Errorf("unmarshal status history: %w", err)
		}
	}
	return &rec, nil
}

func (r *ledgerRepo) GetByID(ctx context.Context, recordID string) (*domain.TransactionRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, recordID)
	return scanRecord(row)
}

func (r *ledgerRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionRecord, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key)
	return scanRecord(row)
}

func (r *ledgerRepo) ListByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TransactionRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendStatusHistory adds an entry without touching the record status.
// Used for out-of-band settlement outcomes on already-terminal records.
func (r *ledgerRepo) AppendStatusHistory(ctx context.Context, recordID string, change domain.StatusChange) error {
	entry, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal status change: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET status_history = status_history || $1::jsonb
		WHERE id = $2
	`, entry, recordID)
	if err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
