package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"payauth-service/internal/domain"
	"payauth-service/internal/usecase"
	"payauth-service/pkg/response"
	xerrors "payauth-service/pkg/xerrors"
)

type contextKey string

const (
	ctxKeyAccountID contextKey = "account_id"
	ctxKeySessionID contextKey = "session_id"
)

// AccountID returns the authenticated account id placed by RequireAuth.
func AccountID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyAccountID).(string)
	return v, ok
}

func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeySessionID).(string)
	return v, ok
}

// RequireAuth validates the bearer token against the session store and puts
// the account and session ids on the request context.
func RequireAuth(sessions *usecase.SessionUsecase) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				response.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			session, err := sessions.Validate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, xerrors.ErrExpiredToken):
					response.Error(w, http.StatusUnauthorized, "token expired")
				case errors.Is(err, xerrors.ErrSessionRevoked):
					response.Error(w, http.StatusUnauthorized, "session revoked")
				case errors.Is(err, xerrors.ErrInvalidToken):
					response.Error(w, http.StatusUnauthorized, "invalid token")
				default:
					response.Error(w, http.StatusInternalServerError, "authentication unavailable")
				}
				return
			}

			ctx := withSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withSession(ctx context.Context, s *domain.Session) context.Context {
	ctx = context.WithValue(ctx, ctxKeyAccountID, s.AccountID)
	return context.WithValue(ctx, ctxKeySessionID, s.ID)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
