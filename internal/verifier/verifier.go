package verifier

import (
	"context"

	"payauth-service/internal/domain"
)

// Reasons carried on non-matching results. These are outcomes, not errors:
// a verifier only returns a Go error for infrastructure failure.
const (
	ReasonNoMatch          = "no_match"
	ReasonUserCancelled    = "user_cancelled"
	ReasonNoTemplate       = "no_template_registered"
	ReasonInvalidProof     = "invalid_proof"
	ReasonChallengeExpired = "challenge_expired"
	ReasonPINNotSet        = "pin_not_set"
)

// Result is the typed outcome of one verification.
type Result struct {
	Matched      bool
	Cancelled    bool
	CredentialID string
	Method       domain.CredentialType
	Assurance    domain.Assurance
	Reason       string
	// Distance is the raw similarity metric for observability. It is never
	// surfaced to end users.
	Distance float64
}

// Proof is the opaque capture payload submitted by the client, shaped per
// method. Cancelled marks a user-declined ceremony.
type Proof struct {
	Secret      string    `json:"secret,omitempty"`       // pin
	ChallengeID string    `json:"challenge_id,omitempty"` // device key
	Signature   []byte    `json:"signature,omitempty"`    // device key, ASN.1 DER
	Embedding   []float64 `json:"embedding,omitempty"`    // face
	Sample      []byte    `json:"sample,omitempty"`       // voice / legacy fingerprint
	Code        string    `json:"code,omitempty"`         // totp
	Cancelled   bool      `json:"cancelled,omitempty"`
}

// Verifier checks a submitted proof against the stored template for one
// credential type. Implementations are pure given (template, proof) except
// for touching last-used on success.
type Verifier interface {
	Type() domain.CredentialType
	Verify(ctx context.Context, accountID string, proof Proof) (Result, error)
}

// Registry maps credential types to their verification strategy. Adding a
// new proof method is one implementation plus one Register call.
type Registry struct {
	byType map[domain.CredentialType]Verifier
}

func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{byType: make(map[domain.CredentialType]Verifier)}
	for _, v := range verifiers {
		r.Register(v)
	}
	return r
}

func (r *Registry) Register(v Verifier) {
	r.byType[v.Type()] = v
}

func (r *Registry) Get(t domain.CredentialType) (Verifier, bool) {
	v, ok := r.byType[t]
	return v, ok
}

func noMatch(t domain.CredentialType, reason string) Result {
	return Result{Method: t, Assurance: t.Assurance(), Reason: reason}
}

func matched(t domain.CredentialType, credentialID string) Result {
	return Result{
		Matched:      true,
		Method:       t,
		Assurance:    t.Assurance(),
		CredentialID: credentialID,
	}
}
