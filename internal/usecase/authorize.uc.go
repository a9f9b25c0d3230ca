package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"payauth-service/internal/domain"
	"payauth-service/internal/repository"
	"payauth-service/internal/verifier"
	xerrors "payauth-service/pkg/xerrors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// captureWindows bounds how long each method's Verifying state may last.
// A proof arriving after the window is a timeout, never a match.
var captureWindows = map[domain.CredentialType]time.Duration{
	domain.CredentialDeviceKey:         2 * time.Minute,
	domain.CredentialFace:              time.Minute,
	domain.CredentialVoice:             90 * time.Second,
	domain.CredentialLegacyFingerprint: 90 * time.Second,
	domain.CredentialTOTP:              90 * time.Second,
	domain.CredentialPIN:               5 * time.Minute,
}

// fallbackOrder is the preference order offered to the user. Only enrolled,
// active types survive filtering; PIN is the fallback when nothing is
// enrolled.
var fallbackOrder = []domain.CredentialType{
	domain.CredentialDeviceKey,
	domain.CredentialFace,
	domain.CredentialVoice,
	domain.CredentialLegacyFingerprint,
	domain.CredentialTOTP,
}

const attemptRetention = 15 * time.Minute

// AuthorizeUsecase drives the verification state machine for payment
// actions. Attempts are ephemeral and held in memory only; a new action
// always creates a new attempt.
type AuthorizeUsecase struct {
	creds      repository.CredentialRepository
	accounts   repository.AccountRepository
	verifiers  *verifier.Registry
	challenges verifier.ChallengeStore
	logger     *zap.Logger

	mu       sync.Mutex
	attempts map[string]*domain.AuthorizationAttempt
}

func NewAuthorizeUsecase(
	creds repository.CredentialRepository,
	accounts repository.AccountRepository,
	verifiers *verifier.Registry,
	challenges verifier.ChallengeStore,
	logger *zap.Logger,
) *AuthorizeUsecase {
	return &AuthorizeUsecase{
		creds:      creds,
		accounts:   accounts,
		verifiers:  verifiers,
		challenges: challenges,
		logger:     logger,
		attempts:   make(map[string]*domain.AuthorizationAttempt),
	}
}

// RequestAuthorization opens a new attempt for a payment action and resolves
// the candidate method order for the account.
func (u *AuthorizeUsecase) RequestAuthorization(ctx context.Context, accountID string, amount int64, description string) (*domain.AuthorizationAttempt, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", xerrors.ErrInvalidRequest)
	}

	enrolled, err := u.creds.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	enrolledTypes := make(map[domain.CredentialType]bool, len(enrolled))
	for _, c := range enrolled {
		enrolledTypes[c.Type] = true
	}

	var methods []domain.CredentialType
	for _, t := range fallbackOrder {
		if enrolledTypes[t] {
			methods = append(methods, t)
		}
	}

	if len(methods) == 0 {
		account, err := u.accounts.GetByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
		if !account.HasPIN() {
			// Nothing to verify against; the caller redirects to enrollment.
			return nil, xerrors.ErrNoAuthorizationMethod
		}
		methods = []domain.CredentialType{domain.CredentialPIN}
	}

	attempt := domain.NewAttempt(uuid.NewString(), accountID, amount, description, methods)

	u.mu.Lock()
	u.attempts[attempt.ID] = attempt
	snapshot := cloneAttempt(attempt)
	u.mu.Unlock()

	u.logger.Info("authorization attempt opened",
		zap.String("attempt_id", attempt.ID),
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.Int("methods", len(methods)),
	)
	return snapshot, nil
}

// IssueChallenge moves a device-key attempt into Verifying and hands out a
// fresh nonce for the authenticator to sign.
func (u *AuthorizeUsecase) IssueChallenge(ctx context.Context, attemptID string) (*verifier.Challenge, error) {
	window := captureWindows[domain.CredentialDeviceKey]

	u.mu.Lock()
	attempt, ok := u.attempts[attemptID]
	if !ok {
		u.mu.Unlock()
		return nil, xerrors.ErrAttemptNotFound
	}
	accountID := attempt.AccountID
	if err := attempt.BeginVerifying(domain.CredentialDeviceKey, time.Now().Add(window)); err != nil {
		u.mu.Unlock()
		return nil, err
	}
	u.mu.Unlock()

	return u.challenges.Issue(ctx, accountID, window)
}

// SubmitProof runs one verification for the attempt. Expected outcomes
// (no match, cancelled, timeout) land on the attempt state; only
// infrastructure failures return an error.
func (u *AuthorizeUsecase) SubmitProof(ctx context.Context, attemptID string, method domain.CredentialType, proof verifier.Proof) (*domain.AuthorizationAttempt, error) {
	window, ok := captureWindows[method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown method %q", xerrors.ErrInvalidRequest, method)
	}

	u.mu.Lock()
	attempt, found := u.attempts[attemptID]
	if !found {
		u.mu.Unlock()
		return nil, xerrors.ErrAttemptNotFound
	}

	now := time.Now()
	if attempt.TimedOut(now) {
		_ = attempt.Fail(domain.ReasonTimeout)
		snapshot := cloneAttempt(attempt)
		u.mu.Unlock()
		return snapshot, nil
	}

	if proof.Cancelled {
		if err := attempt.Cancel(); err != nil {
			u.mu.Unlock()
			return nil, err
		}
		snapshot := cloneAttempt(attempt)
		u.mu.Unlock()
		return snapshot, nil
	}

	// Device-key ceremonies enter Verifying when the challenge is issued;
	// everything else enters here, when the capture result arrives.
	if attempt.State != domain.StateVerifying || attempt.Method != method {
		if err := attempt.BeginVerifying(method, now.Add(window)); err != nil {
			u.mu.Unlock()
			return nil, err
		}
	}
	accountID := attempt.AccountID
	u.mu.Unlock()

	v, ok := u.verifiers.Get(method)
	if !ok {
		return nil, fmt.Errorf("%w: no verifier for %q", xerrors.ErrInternalServer, method)
	}

	vctx, cancel := context.WithTimeout(ctx, window)
	result, verr := v.Verify(vctx, accountID, proof)
	cancel()

	u.mu.Lock()
	defer u.mu.Unlock()

	attempt, found = u.attempts[attemptID]
	if !found {
		return nil, xerrors.ErrAttemptNotFound
	}
	// Cancellation while the verifier ran wins; nothing can resurrect the
	// attempt after that.
	if attempt.State == domain.StateCancelled {
		return cloneAttempt(attempt), nil
	}

	switch {
	case errors.Is(verr, context.DeadlineExceeded):
		_ = attempt.Fail(domain.ReasonTimeout)
	case verr != nil:
		// An infrastructure failure must never resolve as Succeeded.
		_ = attempt.Fail(domain.ReasonInternal)
		u.logger.Error("verification failed",
			zap.String("attempt_id", attemptID),
			zap.String("method", string(method)),
			zap.Error(verr),
		)
		return cloneAttempt(attempt), fmt.Errorf("%w: verification unavailable", xerrors.ErrInternalServer)
	case result.Cancelled:
		_ = attempt.Cancel()
	case attempt.TimedOut(time.Now()):
		_ = attempt.Fail(domain.ReasonTimeout)
	case !result.Matched:
		_ = attempt.Fail(result.Reason)
	default:
		if err := attempt.Succeed(method, result.CredentialID); err != nil {
			return nil, err
		}
		u.logger.Info("authorization succeeded",
			zap.String("attempt_id", attemptID),
			zap.String("method", string(method)),
			zap.String("assurance", string(attempt.Assurance)),
			zap.Float64("distance", result.Distance),
		)
	}
	return cloneAttempt(attempt), nil
}

// CancelAttempt marks the attempt cancelled. Server side there is nothing to
// free; capture resources live on the client.
func (u *AuthorizeUsecase) CancelAttempt(ctx context.Context, attemptID string) (*domain.AuthorizationAttempt, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	attempt, ok := u.attempts[attemptID]
	if !ok {
		return nil, xerrors.ErrAttemptNotFound
	}
	if err := attempt.Cancel(); err != nil {
		return nil, err
	}
	return cloneAttempt(attempt), nil
}

func (u *AuthorizeUsecase) GetAttempt(attemptID string) (*domain.AuthorizationAttempt, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	attempt, ok := u.attempts[attemptID]
	if !ok {
		return nil, xerrors.ErrAttemptNotFound
	}
	if attempt.TimedOut(time.Now()) {
		_ = attempt.Fail(domain.ReasonTimeout)
	}
	return cloneAttempt(attempt), nil
}

// Authorized is the ledger precondition check: the attempt must exist,
// belong to the account, have succeeded, and cover the requested amount.
func (u *AuthorizeUsecase) Authorized(attemptID, accountID string, amount int64) (*domain.AuthorizationAttempt, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	attempt, ok := u.attempts[attemptID]
	if !ok {
		return nil, xerrors.ErrAttemptNotFound
	}
	if attempt.AccountID != accountID {
		return nil, xerrors.ErrForbidden
	}
	if attempt.State != domain.StateSucceeded {
		return nil, xerrors.ErrAttemptNotAuthorized
	}
	if attempt.Amount != amount {
		return nil, xerrors.ErrAmountMismatch
	}
	return cloneAttempt(attempt), nil
}

// StartSweeper times out hung Verifying attempts and drops finished ones
// after the retention window. Attempts are never persisted.
func (u *AuthorizeUsecase) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			u.sweep()
		case <-ctx.Done():
			u.logger.Info("attempt sweeper stopped")
			return
		}
	}
}

func (u *AuthorizeUsecase) sweep() {
	now := time.Now()
	u.mu.Lock()
	defer u.mu.Unlock()

	for id, attempt := range u.attempts {
		if attempt.TimedOut(now) {
			_ = attempt.Fail(domain.ReasonTimeout)
		}
		if now.Sub(attempt.CreatedAt) > attemptRetention {
			delete(u.attempts, id)
		}
	}
}

func cloneAttempt(a *domain.AuthorizationAttempt) *domain.AuthorizationAttempt {
	clone := *a
	clone.Methods = append([]domain.CredentialType(nil), a.Methods...)
	return &clone
}
