package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	"payauth-service/pkg/id"
	"payauth-service/pkg/jwtutil"
	xerrors "payauth-service/pkg/xerrors"

	"go.uber.org/zap"
)

// SessionUsecase issues and validates bearer tokens. A token is only usable
// while its backing session row is unrevoked and unexpired; revocation takes
// effect immediately regardless of the JWT's own expiry.
type SessionUsecase struct {
	sessions repository.SessionRepository
	tokenGen *jwtutil.Generator
	tokenVer *jwtutil.Verifier
	logger   *zap.Logger
}

func NewSessionUsecase(sessions repository.SessionRepository, gen *jwtutil.Generator, ver *jwtutil.Verifier, logger *zap.Logger) *SessionUsecase {
	return &SessionUsecase{sessions: sessions, tokenGen: gen, tokenVer: ver, logger: logger}
}

// Issue creates a session for an account that just proved its password.
func (u *SessionUsecase) Issue(ctx context.Context, accountID string, device domain.DeviceInfo) (*domain.Session, string, error) {
	sessionID := id.GenerateUUID("sess")
	token, _, err := u.tokenGen.Generate(accountID, sessionID, device.DeviceID)
	if err != nil {
		return nil, "", fmt.Errorf("sign session token: %w", err)
	}

	now := time.Now()
	session := &domain.Session{
		ID:        sessionID,
		AccountID: accountID,
		Token:     token,
		IsRevoked: false,
		CreatedAt: now,
		ExpiresAt: now.Add(u.tokenGen.Ttl),
	}
	if device.DeviceID != "" {
		session.DeviceID = &device.DeviceID
	}
	if device.IPAddress != "" {
		session.IPAddress = &device.IPAddress
	}
	if device.UserAgent != "" {
		session.UserAgent = &device.UserAgent
	}

	if err := u.sessions.Create(ctx, session); err != nil {
		return nil, "", err
	}

	u.logger.Info("session issued",
		zap.String("session_id", sessionID),
		zap.String("account_id", accountID),
	)
	return session, token, nil
}

// Validate checks signature, expiry and revocation, and returns the live
// session. Last-seen is updated best effort.
func (u *SessionUsecase) Validate(ctx context.Context, token string) (*domain.Session, error) {
	claims, err := u.tokenVer.Verify(token)
	if err != nil {
		if errors.Is(err, jwtutil.ErrTokenExpired) {
			return nil, xerrors.ErrExpiredToken
		}
		return nil, xerrors.ErrInvalidToken
	}

	session, err := u.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrInvalidToken
		}
		return nil, err
	}
	if session.AccountID != claims.AccountID {
		return nil, xerrors.ErrInvalidToken
	}
	if session.IsRevoked {
		return nil, xerrors.ErrSessionRevoked
	}
	if !session.Usable(time.Now()) {
		return nil, xerrors.ErrExpiredToken
	}

	if err := u.sessions.UpdateLastSeen(ctx, session.ID); err != nil {
		u.logger.Warn("update last seen", zap.String("session_id", session.ID), zap.Error(err))
	}
	return session, nil
}

func (u *SessionUsecase) List(ctx context.Context, accountID string) ([]*domain.Session, error) {
	return u.sessions.ListByAccount(ctx, accountID)
}

func (u *SessionUsecase) Revoke(ctx context.Context, token string) error {
	return u.sessions.Revoke(ctx, token)
}

// RevokeAll logs the account out of every device, e.g. after a password
// change.
func (u *SessionUsecase) RevokeAll(ctx context.Context, accountID string) error {
	if err := u.sessions.RevokeAllByAccount(ctx, accountID); err != nil {
		return err
	}
	u.logger.Info("all sessions revoked", zap.String("account_id", accountID))
	return nil
}
