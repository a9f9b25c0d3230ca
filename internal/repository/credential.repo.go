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

type CredentialRepository interface {
	Create(ctx context.Context, c *domain.Credential) error
	GetByID(ctx context.Context, id string) (*domain.Credential, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Credential, error)
	ListActiveByAccount(ctx context.Context, accountID string) ([]*domain.Credential, error)
	GetActiveByType(ctx context.Context, accountID string, t domain.CredentialType) (*domain.Credential, error)
	SetActive(ctx context.Context, id string, active bool) (*domain.Credential, error)
	UpdateLabel(ctx context.Context, id, label string) (*domain.Credential, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccount(ctx context.Context, accountID string) error
	TouchLastUsed(ctx context.Context, id string) error
}

type credentialRepo struct {
	db *pgxpool.Pool
}

func NewCredentialRepository(db *pgxpool.Pool) CredentialRepository {
	return &credentialRepo{db: db}
}

const credentialColumns = `id, account_id, type, template, label, is_active, last_used_at, created_at`

func scanCredential(row pgx.Row) (*domain.Credential, error) {
	var c domain.Credential
	err := row.Scan(&c.ID, &c.AccountID, &c.Type, &c.Template, &c.Label, &c.IsActive, &c.LastUsedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *credentialRepo) Create(ctx context.Context, c *domain.Credential) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO credentials (id, account_id, type, template, label, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.AccountID, c.Type, c.Template, c.Label, c.IsActive, c.CreatedAt)
	if err != nil {
		// The partial unique index on (account_id, type) WHERE is_active
		// serializes concurrent enrollments of the same type.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrDuplicateCredential
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (r *credentialRepo) GetByID(ctx context.Context, id string) (*domain.Credential, error) {
	row := r.db.QueryRow(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
	return scanCredential(row)
}

func (r *credentialRepo) listByAccount(ctx context.Context, accountID string, activeOnly bool) ([]*domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE account_id = $1`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*domain.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *credentialRepo) ListByAccount(ctx context.Context, accountID string) ([]*domain.Credential, error) {
	return r.listByAccount(ctx, accountID, false)
}

func (r *credentialRepo) ListActiveByAccount(ctx context.Context, accountID string) ([]*domain.Credential, error) {
	return r.listByAccount(ctx, accountID, true)
}

func (r *credentialRepo) GetActiveByType(ctx context.Context, accountID string, t domain.CredentialType) (*domain.Credential, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+credentialColumns+` FROM credentials
		WHERE account_id = $1 AND type = $2 AND is_active = TRUE
		LIMIT 1
	`, accountID, t)
	return scanCredential(row)
}

func (r *credentialRepo) SetActive(ctx context.Context, id string, active bool) (*domain.Credential, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE credentials SET is_active = $1 WHERE id = $2
		RETURNING `+credentialColumns+`
	`, active, id)
	c, err := scanCredential(row)
	if err != nil {
		// Reactivating while another credential of the same type is active
		// trips the partial unique index, same as Create.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, xerrors.ErrDuplicateCredential
		}
		return nil, err
	}
	return c, nil
}

func (r *credentialRepo) UpdateLabel(ctx context.Context, id, label string) (*domain.Credential, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE credentials SET label = $1 WHERE id = $2
		RETURNING `+credentialColumns+`
	`, label, id)
	return scanCredential(row)
}

func (r *credentialRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *credentialRepo) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE account_id = $1`, accountID)
	return err
}

// TouchLastUsed is called only by verifiers on a successful match.
func (r *credentialRepo) TouchLastUsed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE credentials SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}
