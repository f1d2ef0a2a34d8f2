package middleware

import (
	"net/http"

	"oauth-refresh/internal/auth"
	"oauth-refresh/pkg/errors"

	"go.uber.org/zap"
)

// AdminMiddleware guards the admin endpoints with an HMAC-signed admin
// token carried in the configured admin header.
func AdminMiddleware(tokens *auth.AdminTokenManager, adminHeader string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(adminHeader)
			if token == "" {
				writeAuthError(w, errors.ErrUnauthorized)
				return
			}

			if err := tokens.Verify(token); err != nil {
				logger.Warn("Rejected admin request", zap.Error(err))
				writeAuthError(w, errors.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, serviceErr *errors.ServiceError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.Status)
	w.Write([]byte(`{"error":"` + serviceErr.Code + `","error_description":"` + serviceErr.Message + `"}`))
}
