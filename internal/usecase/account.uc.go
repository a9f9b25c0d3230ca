package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	"payauth-service/pkg/id"
	xerrors "payauth-service/pkg/xerrors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var pinPattern = regexp.MustCompile(`^\d{4,6}$`)

// AccountUsecase covers signup, login-password checks and PIN management.
// The PIN is account state, not a credential-store enrollment: it backs the
// knowledge-factor fallback when nothing stronger is enrolled.
type AccountUsecase struct {
	accounts  repository.AccountRepository
	creds     repository.CredentialRepository
	sessions  repository.SessionRepository
	freshness FreshnessStore
	logger    *zap.Logger
}

func NewAccountUsecase(accounts repository.AccountRepository, creds repository.CredentialRepository, sessions repository.SessionRepository, freshness FreshnessStore, logger *zap.Logger) *AccountUsecase {
	return &AccountUsecase{accounts: accounts, creds: creds, sessions: sessions, freshness: freshness, logger: logger}
}

func (u *AccountUsecase) Signup(ctx context.Context, email, displayName, password string) (*domain.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", xerrors.ErrInvalidRequest)
	}
	if len(password) < 8 {
		return nil, xerrors.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &domain.Account{
		ID:           id.GenerateUUID("acct"),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		Balance:      0,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := u.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	u.logger.Info("account created", zap.String("account_id", account.ID))
	return account, nil
}

// VerifyPassword checks email+password and returns the account on success.
// Used for login and for fresh-auth confirmation.
func (u *AccountUsecase) VerifyPassword(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := u.accounts.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if err == xerrors.ErrAccountNotFound {
			// Same error as a wrong password; do not reveal which.
			return nil, xerrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return nil, xerrors.ErrInvalidCredentials
	}
	return account, nil
}

// ConfirmPassword re-checks the current password for an already authenticated
// session and marks the session fresh for sensitive operations.
func (u *AccountUsecase) ConfirmPassword(ctx context.Context, sessionID, accountID, password string) error {
	account, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return xerrors.ErrInvalidCredentials
	}
	return u.freshness.MarkFresh(ctx, sessionID)
}

func (u *AccountUsecase) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return u.accounts.GetByID(ctx, accountID)
}

func (u *AccountUsecase) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := u.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)) != nil {
		return xerrors.ErrInvalidCredentials
	}
	if len(next) < 8 {
		return xerrors.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := u.accounts.UpdatePasswordHash(ctx, accountID, string(hash)); err != nil {
		return err
	}

	// A password change invalidates every other device's session.
	if err := u.sessions.RevokeAllByAccount(ctx, accountID); err != nil {
		u.logger.Error("revoke sessions after password change", zap.String("account_id", accountID), zap.Error(err))
	}
	return nil
}

// SetPIN sets or replaces the transaction PIN. Requires a fresh password
// confirmation on the calling session.
func (u *AccountUsecase) SetPIN(ctx context.Context, sessionID, accountID, pin string) error {
	fresh, err := u.freshness.IsFresh(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("freshness check: %w", err)
	}
	if !fresh {
		return xerrors.ErrFreshAuthRequired
	}
	if !pinPattern.MatchString(pin) {
		return xerrors.ErrInvalidPIN
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := u.accounts.UpdatePINHash(ctx, accountID, string(hash)); err != nil {
		return err
	}
	u.logger.Info("transaction pin updated", zap.String("account_id", accountID))
	return nil
}

// Delete removes the account, its credential templates and its sessions.
// The foreign keys cascade too, but templates and tokens are purged here
// explicitly so the invariant does not hinge on schema wiring.
func (u *AccountUsecase) Delete(ctx context.Context, sessionID, accountID string) error {
	fresh, err := u.freshness.IsFresh(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("freshness check: %w", err)
	}
	if !fresh {
		return xerrors.ErrFreshAuthRequired
	}
	if err := u.creds.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	if err := u.sessions.DeleteByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	if err := u.accounts.Delete(ctx, accountID); err != nil {
		return err
	}
	u.logger.Info("account deleted", zap.String("account_id", accountID))
	return nil
}
