package usecase

import (
	"context"
	"fmt"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	"payauth-service/pkg/id"
	xerrors "payauth-service/pkg/xerrors"

	"go.uber.org/zap"
)

// CredentialUsecase manages enrollment lifecycle. Registration, removal and
// deactivation are sensitive operations: the caller's session must carry a
// fresh password confirmation, not just a live token.
type CredentialUsecase struct {
	creds     repository.CredentialRepository
	freshness FreshnessStore
	logger    *zap.Logger
}

func NewCredentialUsecase(creds repository.CredentialRepository, freshness FreshnessStore, logger *zap.Logger) *CredentialUsecase {
	return &CredentialUsecase{creds: creds, freshness: freshness, logger: logger}
}

func (u *CredentialUsecase) requireFresh(ctx context.Context, sessionID string) error {
	fresh, err := u.freshness.IsFresh(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("freshness check: %w", err)
	}
	if !fresh {
		return xerrors.ErrFreshAuthRequired
	}
	return nil
}

// Register enrolls a new credential of the given type. At most one active
// credential per type exists per account; the database index backstops the
// pre-check under concurrency.
func (u *CredentialUsecase) Register(ctx context.Context, sessionID, accountID string, credType domain.CredentialType, template []byte, label string) (*domain.Credential, error) {
	if err := u.requireFresh(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := domain.ValidateTemplate(credType, template); err != nil {
		return nil, err
	}

	cred := &domain.Credential{
		ID:        id.GenerateUUID("cred"),
		AccountID: accountID,
		Type:      credType,
		Template:  template,
		Label:     label,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := u.creds.Create(ctx, cred); err != nil {
		return nil, err
	}

	u.logger.Info("credential enrolled",
		zap.String("account_id", accountID),
		zap.String("credential_id", cred.ID),
		zap.String("type", string(credType)),
	)
	return cred, nil
}

// List returns all of the account's credentials, active or not. Templates are
// never serialized in responses.
func (u *CredentialUsecase) List(ctx context.Context, accountID string) ([]*domain.Credential, error) {
	return u.creds.ListByAccount(ctx, accountID)
}

// SetActive toggles a credential. Disabling is idempotent; disabling an
// already-disabled credential is not an error.
func (u *CredentialUsecase) SetActive(ctx context.Context, sessionID, accountID, credentialID string, active bool) (*domain.Credential, error) {
	if err := u.requireFresh(ctx, sessionID); err != nil {
		return nil, err
	}
	cred, err := u.ownedCredential(ctx, accountID, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.IsActive == active {
		return cred, nil
	}
	updated, err := u.creds.SetActive(ctx, credentialID, active)
	if err != nil {
		return nil, err
	}
	u.logger.Info("credential toggled",
		zap.String("credential_id", credentialID),
		zap.Bool("active", active),
	)
	return updated, nil
}

func (u *CredentialUsecase) Relabel(ctx context.Context, sessionID, accountID, credentialID, label string) (*domain.Credential, error) {
	if err := u.requireFresh(ctx, sessionID); err != nil {
		return nil, err
	}
	if _, err := u.ownedCredential(ctx, accountID, credentialID); err != nil {
		return nil, err
	}
	return u.creds.UpdateLabel(ctx, credentialID, label)
}

// Remove deletes the credential outright. Historical transactions keep their
// method metadata; they never reference the credential row.
func (u *CredentialUsecase) Remove(ctx context.Context, sessionID, accountID, credentialID string) error {
	if err := u.requireFresh(ctx, sessionID); err != nil {
		return err
	}
	if _, err := u.ownedCredential(ctx, accountID, credentialID); err != nil {
		return err
	}
	if err := u.creds.Delete(ctx, credentialID); err != nil {
		return err
	}
	u.logger.Info("credential removed", zap.String("credential_id", credentialID))
	return nil
}

func (u *CredentialUsecase) ownedCredential(ctx context.Context, accountID, credentialID string) (*domain.Credential, error) {
	cred, err := u.creds.GetByID(ctx, credentialID)
	if err != nil {
		return nil, err
	}
	if cred.AccountID != accountID {
		// Do not leak existence of another account's credential.
		return nil, xerrors.ErrNotFound
	}
	return cred, nil
}
