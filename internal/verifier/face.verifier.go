package verifier

import (
	"context"
	"errors"
	"fmt"
	"math"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	xerrors "payauth-service/pkg/xerrors"
)

// FaceMatchThreshold is the Euclidean distance below which two embeddings
// are considered the same face.
const FaceMatchThreshold = 0.6

// FaceVerifier compares a submitted embedding against the enrolled one.
// The raw distance is carried on the result for observability only.
type FaceVerifier struct {
	creds repository.CredentialRepository
}

func NewFaceVerifier(creds repository.CredentialRepository) *FaceVerifier {
	return &FaceVerifier{creds: creds}
}

func (v *FaceVerifier) Type() domain.CredentialType { return domain.CredentialFace }

func (v *FaceVerifier) Verify(ctx context.Context, accountID string, proof Proof) (Result, error) {
	if proof.Cancelled {
		return Result{Cancelled: true, Method: v.Type(), Reason: ReasonUserCancelled}, nil
	}

	cred, err := v.creds.GetActiveByType(ctx, accountID, domain.CredentialFace)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return noMatch(v.Type(), ReasonNoTemplate), nil
		}
		return Result{}, fmt.Errorf("face verifier: %w", err)
	}

	stored, err := domain.ParseFaceEmbedding(cred.Template)
	if err != nil {
		return Result{}, fmt.Errorf("face verifier: corrupt template: %w", err)
	}
	if len(proof.Embedding) != domain.FaceEmbeddingDim {
		return noMatch(v.Type(), ReasonInvalidProof), nil
	}

	dist := euclidean(stored, proof.Embedding)
	if dist >= FaceMatchThreshold {
		res := noMatch(v.Type(), ReasonNoMatch)
		res.Distance = dist
		return res, nil
	}

	if err := v.creds.TouchLastUsed(ctx, cred.ID); err != nil {
		return Result{}, fmt.Errorf("face verifier: touch last used: %w", err)
	}
	res := matched(v.Type(), cred.ID)
	res.Distance = dist
	return res, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
