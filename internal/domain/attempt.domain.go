package domain

import (
	"fmt"
	"time"

	xerrors "payauth-service/pkg/xerrors"
)

type AttemptState string

const (
	StateIdle            AttemptState = "idle"
	StateMethodSelection AttemptState = "method_selection"
	StateVerifying       AttemptState = "verifying"
	StateSucceeded       AttemptState = "succeeded"
	StateFailed          AttemptState = "failed"
	StateCancelled       AttemptState = "cancelled"
)

// Failure reasons surfaced to callers as typed results, not errors.
const (
	ReasonNoMatch       = "no_match"
	ReasonUserCancelled = "user_cancelled"
	ReasonTimeout       = "timeout"
	ReasonInternal      = "internal"
)

// AuthorizationAttempt is one ephemeral run of the verification state machine
// for a single payment action. It is never persisted; a new action always
// creates a new attempt.
type AuthorizationAttempt struct {
	ID          string           `json:"id"`
	AccountID   string           `json:"account_id"`
	Amount      int64            `json:"amount"`
	Description string           `json:"description,omitempty"`
	Methods     []CredentialType `json:"methods"` // candidate order, offered as a choice
	State       AttemptState     `json:"state"`

	// Populated on success.
	Method       CredentialType `json:"method,omitempty"`
	CredentialID string         `json:"credential_id,omitempty"`
	Assurance    Assurance      `json:"assurance,omitempty"`

	// Populated on failure.
	Reason string `json:"reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	// Deadline bounds the Verifying state; a proof arriving later is a
	// timeout, not a match.
	Deadline time.Time `json:"deadline,omitempty"`
}

func NewAttempt(id, accountID string, amount int64, description string, methods []CredentialType) *AuthorizationAttempt {
	return &AuthorizationAttempt{
		ID:          id,
		AccountID:   accountID,
		Amount:      amount,
		Description: description,
		Methods:     methods,
		State:       StateMethodSelection,
		CreatedAt:   time.Now(),
	}
}

// Terminal reports whether no further proof can change the outcome.
// Failed still allows retry per the coordinator contract, so only
// Succeeded and Cancelled are truly final.
func (a *AuthorizationAttempt) Terminal() bool {
	return a.State == StateSucceeded || a.State == StateCancelled
}

func (a *AuthorizationAttempt) Offers(m CredentialType) bool {
	for _, c := range a.Methods {
		if c == m {
			return true
		}
	}
	return false
}

// BeginVerifying moves the attempt into Verifying for the given method.
// Allowed from MethodSelection (first try), Verifying (challenge re-issue for
// the same method) and Failed (retry with the same or another method).
func (a *AuthorizationAttempt) BeginVerifying(m CredentialType, deadline time.Time) error {
	switch a.State {
	case StateMethodSelection, StateVerifying, StateFailed:
	default:
		return fmt.Errorf("%w: state %s", xerrors.ErrAttemptTerminal, a.State)
	}
	if !a.Offers(m) {
		return xerrors.ErrMethodNotOffered
	}
	a.State = StateVerifying
	a.Method = m
	a.Reason = ""
	a.Deadline = deadline
	return nil
}

// Succeed marks the attempt as authorized, recording which method and
// credential actually proved identity.
func (a *AuthorizationAttempt) Succeed(m CredentialType, credentialID string) error {
	if a.State != StateVerifying {
		return fmt.Errorf("cannot succeed from state %s", a.State)
	}
	a.State = StateSucceeded
	a.Method = m
	a.CredentialID = credentialID
	a.Assurance = m.Assurance()
	a.Reason = ""
	return nil
}

func (a *AuthorizationAttempt) Fail(reason string) error {
	if a.State != StateVerifying && a.State != StateMethodSelection {
		return fmt.Errorf("cannot fail from state %s", a.State)
	}
	a.State = StateFailed
	a.Reason = reason
	return nil
}

// Cancel is the user declining the ceremony. It is not an error outcome and
// must never be recorded as Failed.
func (a *AuthorizationAttempt) Cancel() error {
	switch a.State {
	case StateCancelled:
		return nil // idempotent
	case StateSucceeded:
		return fmt.Errorf("%w: already succeeded", xerrors.ErrAttemptTerminal)
	}
	a.State = StateCancelled
	a.Reason = ReasonUserCancelled
	return nil
}

// TimedOut reports whether a Verifying attempt has outlived its capture
// window.
func (a *AuthorizationAttempt) TimedOut(now time.Time) bool {
	return a.State == StateVerifying && !a.Deadline.IsZero() && now.After(a.Deadline)
}
