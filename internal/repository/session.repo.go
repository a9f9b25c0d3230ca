package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payauth-service/internal/domain"
	xerrors "payauth-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByToken(ctx context.Context, token string) (*domain.Session, error)
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Session, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllByAccount(ctx context.Context, accountID string) error
	UpdateLastSeen(ctx context.Context, id string) error
	DeleteByAccount(ctx context.Context, accountID string) error
}

type sessionRepo struct {
	db *pgxpool.Pool
}

func NewSessionRepository(db *pgxpool.Pool) SessionRepository {
	return &sessionRepo{db: db}
}

const sessionColumns = `id, account_id, token, device_id, ip_address, user_agent, is_revoked, last_seen_at, created_at, expires_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.AccountID, &s.Token, &s.DeviceID, &s.IPAddress, &s.UserAgent,
		&s.IsRevoked, &s.LastSeenAt, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *sessionRepo) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, account_id, token, device_id, ip_address, user_agent, is_revoked, last_seen_at, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, s.ID, s.AccountID, s.Token, s.DeviceID, s.IPAddress, s.UserAgent, s.IsRevoked, s.LastSeenAt, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1 LIMIT 1`, token)
	return scanSession(row)
}

func (r *sessionRepo) ListByAccount(ctx context.Context, accountID string) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *sessionRepo) Revoke(ctx context.Context, token string) error {
	tag, err := r.db.Exec(ctx, `UPDATE sessions SET is_revoked = TRUE WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) RevokeAllByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET is_revoked = TRUE WHERE account_id = $1`, accountID)
	return err
}

func (r *sessionRepo) UpdateLastSeen(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET last_seen_at = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (r *sessionRepo) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	return err
}
