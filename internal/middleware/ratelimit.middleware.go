package middleware

import (
	"net"
	"net/http"
	"time"

	"payauth-service/pkg/cache"
	"payauth-service/pkg/response"

	"go.uber.org/zap"
)

const rateLimitNamespace = "ratelimit"

// RateLimit is a fixed-window counter per client IP, backed by redis so the
// limit holds across instances. Verification endpoints get a tight limit to
// slow down guessing.
func RateLimit(c *cache.Cache, logger *zap.Logger, limit int64, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r) + ":" + r.URL.Path
			count, err := c.IncrWithExpire(r.Context(), rateLimitNamespace, key, window)
			if err != nil {
				// Counting backend down: let traffic through rather than
				// locking everyone out.
				logger.Warn("rate limit backend unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count > limit {
				response.Error(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP keys the counter on RemoteAddr only. The router's RealIP
// middleware already folds trusted proxy headers into RemoteAddr; reading
// X-Forwarded-For here would let any caller rotate the key.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
