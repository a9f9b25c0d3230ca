package verifier

import (
	"context"
	"fmt"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

// PINVerifier checks the numeric transaction PIN against the salted hash on
// the account record. The same bcrypt comparison serves the login password;
// the raw secret is never logged or echoed.
type PINVerifier struct {
	accounts repository.AccountRepository
}

func NewPINVerifier(accounts repository.AccountRepository) *PINVerifier {
	return &PINVerifier{accounts: accounts}
}

func (v *PINVerifier) Type() domain.CredentialType { return domain.CredentialPIN }

func (v *PINVerifier) Verify(ctx context.Context, accountID string, proof Proof) (Result, error) {
	if proof.Cancelled {
		return Result{Cancelled: true, Method: v.Type(), Reason: ReasonUserCancelled}, nil
	}

	account, err := v.accounts.GetByID(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("pin verifier: %w", err)
	}
	if !account.HasPIN() {
		return noMatch(v.Type(), ReasonPINNotSet), nil
	}

	// bcrypt comparison is constant time on the digest.
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PINHash), []byte(proof.Secret)); err != nil {
		return noMatch(v.Type(), ReasonNoMatch), nil
	}
	return matched(v.Type(), ""), nil
}
