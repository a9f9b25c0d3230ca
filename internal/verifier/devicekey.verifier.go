package verifier

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	xerrors "payauth-service/pkg/xerrors"
)

// DeviceKeyVerifier checks a device-bound public-key credential: the
// authenticator signs a freshly issued challenge and the signature is checked
// against the enrolled public key. The private key never reaches the server.
type DeviceKeyVerifier struct {
	creds      repository.CredentialRepository
	challenges ChallengeStore
}

func NewDeviceKeyVerifier(creds repository.CredentialRepository, challenges ChallengeStore) *DeviceKeyVerifier {
	return &DeviceKeyVerifier{creds: creds, challenges: challenges}
}

func (v *DeviceKeyVerifier) Type() domain.CredentialType { return domain.CredentialDeviceKey }

func (v *DeviceKeyVerifier) Verify(ctx context.Context, accountID string, proof Proof) (Result, error) {
	// A declined ceremony is a distinct outcome, not a generic failure:
	// callers may fall back to another method but must not hide it.
	if proof.Cancelled {
		return Result{Cancelled: true, Method: v.Type(), Reason: ReasonUserCancelled}, nil
	}

	cred, err := v.creds.GetActiveByType(ctx, accountID, domain.CredentialDeviceKey)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return noMatch(v.Type(), ReasonNoTemplate), nil
		}
		return Result{}, fmt.Errorf("device key verifier: %w", err)
	}

	var tpl domain.DeviceKeyTemplate
	if err := json.Unmarshal(cred.Template, &tpl); err != nil {
		return Result{}, fmt.Errorf("device key verifier: corrupt template: %w", err)
	}
	pub, err := tpl.PublicKey()
	if err != nil {
		return Result{}, fmt.Errorf("device key verifier: %w", err)
	}

	if proof.ChallengeID == "" || len(proof.Signature) == 0 {
		return noMatch(v.Type(), ReasonInvalidProof), nil
	}

	// Single-use consume: a replayed challenge id is gone by now.
	ch, err := v.challenges.Consume(ctx, proof.ChallengeID)
	if err != nil {
		if errors.Is(err, xerrors.ErrChallengeExpired) {
			return noMatch(v.Type(), ReasonChallengeExpired), nil
		}
		return Result{}, fmt.Errorf("device key verifier: %w", err)
	}
	if ch.AccountID != accountID {
		return noMatch(v.Type(), ReasonChallengeExpired), nil
	}

	digest := sha256.Sum256([]byte(ch.Nonce))
	if !ecdsa.VerifyASN1(pub, digest[:], proof.Signature) {
		return noMatch(v.Type(), ReasonNoMatch), nil
	}

	if err := v.creds.TouchLastUsed(ctx, cred.ID); err != nil {
		return Result{}, fmt.Errorf("device key verifier: touch last used: %w", err)
	}
	return matched(v.Type(), cred.ID), nil
}
