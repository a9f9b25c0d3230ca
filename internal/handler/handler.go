package handler

import (
	"errors"
	"net/http"

	"payauth-service/pkg/response"
	xerrors "payauth-service/pkg/xerrors"
)

// writeError maps domain errors onto HTTP statuses. Anything unmapped is a
// 500 with a generic message; internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, xerrors.ErrInvalidRequest),
		errors.Is(err, xerrors.ErrInvalidTemplate),
		errors.Is(err, xerrors.ErrInvalidPIN),
		errors.Is(err, xerrors.ErrWeakPassword),
		errors.Is(err, xerrors.ErrAmountMismatch):
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, xerrors.ErrInvalidCredentials),
		errors.Is(err, xerrors.ErrInvalidToken),
		errors.Is(err, xerrors.ErrExpiredToken),
		errors.Is(err, xerrors.ErrSessionRevoked):
		response.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, xerrors.ErrFreshAuthRequired),
		errors.Is(err, xerrors.ErrForbidden),
		errors.Is(err, xerrors.ErrAttemptNotAuthorized):
		response.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, xerrors.ErrNotFound),
		errors.Is(err, xerrors.ErrAccountNotFound),
		errors.Is(err, xerrors.ErrAttemptNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, xerrors.ErrAccountAlreadyExists),
		errors.Is(err, xerrors.ErrDuplicateCredential),
		errors.Is(err, xerrors.ErrAttemptTerminal),
		errors.Is(err, xerrors.ErrMethodNotOffered),
		errors.Is(err, xerrors.ErrDuplicateIdempotencyKey):
		response.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, xerrors.ErrInsufficientBalance),
		errors.Is(err, xerrors.ErrNoAuthorizationMethod),
		errors.Is(err, xerrors.ErrPINNotSet),
		errors.Is(err, xerrors.ErrChallengeExpired):
		response.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
