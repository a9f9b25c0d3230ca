package xerrors

import "errors"

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
)

// Accounts / login
var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrWeakPassword         = errors.New("weak password")
	ErrPINNotSet            = errors.New("transaction pin not set")
	ErrInvalidPIN           = errors.New("pin must be 4 to 6 digits")
)

// Credential store
var (
	ErrDuplicateCredential = errors.New("an active credential of this type already exists")
	ErrInvalidTemplate     = errors.New("invalid credential template")
)

// Authorization attempts
var (
	ErrNoAuthorizationMethod = errors.New("no authorization method available")
	ErrAttemptNotFound       = errors.New("authorization attempt not found")
	ErrAttemptTerminal       = errors.New("authorization attempt already finished")
	ErrMethodNotOffered      = errors.New("method not offered for this attempt")
	ErrAttemptNotAuthorized  = errors.New("authorization attempt has not succeeded")
)

// Ledger
var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrAmountMismatch          = errors.New("amount does not match authorized amount")
)

// Sessions
var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("expired token")
	ErrSessionRevoked    = errors.New("session revoked")
	ErrFreshAuthRequired = errors.New("recent password confirmation required")
)

// Device-bound credential ceremony
var (
	ErrChallengeExpired = errors.New("challenge expired or already used")
)
