package verifier

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	xerrors "payauth-service/pkg/xerrors"
)

// opaqueCosineThreshold is the byte-histogram cosine similarity above which
// two opaque samples are considered the same source.
const opaqueCosineThreshold = 0.95

// OpaqueVerifier serves the voice and legacy fingerprint types: an
// opaque-template similarity check used as a fallback when hardware-backed
// verification is unavailable. Matching is deliberately simple — exact digest
// equality, or cosine similarity of the byte histograms — and the result is
// flagged low assurance so downstream limits can treat it accordingly.
type OpaqueVerifier struct {
	creds    repository.CredentialRepository
	credType domain.CredentialType
}

func NewOpaqueVerifier(creds repository.CredentialRepository, credType domain.CredentialType) *OpaqueVerifier {
	return &OpaqueVerifier{creds: creds, credType: credType}
}

func (v *OpaqueVerifier) Type() domain.CredentialType { return v.credType }

func (v *OpaqueVerifier) Verify(ctx context.Context, accountID string, proof Proof) (Result, error) {
	if proof.Cancelled {
		return Result{Cancelled: true, Method: v.Type(), Reason: ReasonUserCancelled}, nil
	}

	cred, err := v.creds.GetActiveByType(ctx, accountID, v.credType)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return noMatch(v.Type(), ReasonNoTemplate), nil
		}
		return Result{}, fmt.Errorf("%s verifier: %w", v.credType, err)
	}

	if len(proof.Sample) == 0 {
		return noMatch(v.Type(), ReasonInvalidProof), nil
	}

	sim := opaqueSimilarity(cred.Template, proof.Sample)
	if sim < opaqueCosineThreshold {
		res := noMatch(v.Type(), ReasonNoMatch)
		res.Distance = 1 - sim
		return res, nil
	}

	if err := v.creds.TouchLastUsed(ctx, cred.ID); err != nil {
		return Result{}, fmt.Errorf("%s verifier: touch last used: %w", v.credType, err)
	}
	res := matched(v.Type(), cred.ID)
	res.Distance = 1 - sim
	return res, nil
}

// opaqueSimilarity returns 1.0 for byte-identical samples, otherwise the
// cosine similarity of the 256-bin byte histograms.
func opaqueSimilarity(stored, sample []byte) float64 {
	storedSum := sha256.Sum256(stored)
	sampleSum := sha256.Sum256(sample)
	if subtle.ConstantTimeCompare(storedSum[:], sampleSum[:]) == 1 {
		return 1.0
	}
	return histogramCosine(stored, sample)
}

func histogramCosine(a, b []byte) float64 {
	var ha, hb [256]float64
	for _, c := range a {
		ha[c]++
	}
	for _, c := range b {
		hb[c]++
	}
	var dot, na, nb float64
	for i := 0; i < 256; i++ {
		dot += ha[i] * hb[i]
		na += ha[i] * ha[i]
		nb += hb[i] * hb[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
