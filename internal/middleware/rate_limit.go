package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"oauth-refresh/internal/cache"
	"oauth-refresh/pkg/errors"

	"go.uber.org/zap"
)

// RateLimitMiddleware creates a fixed-window, per-caller rate limiting
// middleware backed by redis counters.
func RateLimitMiddleware(c *cache.Cache, logger *zap.Logger, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := callerKey(r)

			exceeded, err := c.CheckRateLimit(r.Context(), caller, limit, window)
			if err != nil {
				logger.Error("Rate limit check failed", zap.Error(err))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if exceeded {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				w.WriteHeader(errors.ErrRateLimitExceeded.Status)
				w.Write([]byte(`{"error":"` + errors.ErrRateLimitExceeded.Code + `","error_description":"` + errors.ErrRateLimitExceeded.Message + `"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerKey identifies the caller by remote IP, ignoring the port.
func callerKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
