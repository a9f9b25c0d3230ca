package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	xerrors "payauth-service/pkg/xerrors"

	"github.com/pquerna/otp/totp"
)

// TOTPVerifier checks an authenticator-app code against the enrolled secret.
type TOTPVerifier struct {
	creds repository.CredentialRepository
}

func NewTOTPVerifier(creds repository.CredentialRepository) *TOTPVerifier {
	return &TOTPVerifier{creds: creds}
}

func (v *TOTPVerifier) Type() domain.CredentialType { return domain.CredentialTOTP }

func (v *TOTPVerifier) Verify(ctx context.Context, accountID string, proof Proof) (Result, error) {
	if proof.Cancelled {
		return Result{Cancelled: true, Method: v.Type(), Reason: ReasonUserCancelled}, nil
	}

	cred, err := v.creds.GetActiveByType(ctx, accountID, domain.CredentialTOTP)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return noMatch(v.Type(), ReasonNoTemplate), nil
		}
		return Result{}, fmt.Errorf("totp verifier: %w", err)
	}

	secret := strings.ToUpper(strings.TrimSpace(string(cred.Template)))
	if !totp.Validate(proof.Code, secret) {
		return noMatch(v.Type(), ReasonNoMatch), nil
	}

	if err := v.creds.TouchLastUsed(ctx, cred.ID); err != nil {
		return Result{}, fmt.Errorf("totp verifier: touch last used: %w", err)
	}
	return matched(v.Type(), cred.ID), nil
}
