package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payauth-service/internal/domain"
	xerrors "payauth-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdatePINHash(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error
}

type accountRepo struct {
	db *pgxpool.Pool
}

func NewAccountRepository(db *pgxpool.Pool) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (id, email, display_name, balance, password_hash, pin_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Email, a.DisplayName, a.Balance, a.PasswordHash, a.PINHash, a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrAccountAlreadyExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

const accountColumns = `id, email, display_name, balance, password_hash, pin_hash, created_at, updated_at`

func (r *accountRepo) scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Balance, &a.PasswordHash, &a.PINHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return r.scanAccount(row)
}

func (r *accountRepo) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return r.scanAccount(row)
}

func (r *accountRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepo) UpdatePINHash(ctx context.Context, id, hash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET pin_hash = $1, updated_at = $2 WHERE id = $3
	`, hash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update pin hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return nil
}

// Delete removes the account; credentials, sessions and transaction records
// go with it via ON DELETE CASCADE.
func (r *accountRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrAccountNotFound
	}
	return nil
}
