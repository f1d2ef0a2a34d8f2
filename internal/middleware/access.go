package middleware

import (
	"context"
	"net/http"
	"time"

	"oauth-refresh/internal/cache"
	"oauth-refresh/internal/database"
	"oauth-refresh/internal/models"
	"oauth-refresh/pkg/errors"

	"go.uber.org/zap"
)

type contextKey string

// AccessRecordKey is the request-context key under which the resolved
// access record is stored for downstream handlers.
const AccessRecordKey contextKey = "access_record"

// AccessMiddleware guards the integration endpoints: the auth header must
// resolve to a live access record. Lookups are cached so repeated triggers
// by the same caller do not hit the repository every time.
func AccessMiddleware(repo database.Repository, c *cache.Cache, authHeader string, cacheTTL time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accessKey := r.Header.Get(authHeader)
			if accessKey == "" {
				writeAuthError(w, errors.ErrUnauthorized)
				return
			}

			ctx := r.Context()

			record, err := c.GetAccessRecord(ctx, accessKey)
			if err != nil {
				logger.Warn("Access record cache lookup failed", zap.Error(err))
			}

			if record == nil {
				record, err = repo.GetAccessRecordByKey(ctx, accessKey)
				if err != nil {
					writeAuthError(w, errors.ErrInternalServer)
					return
				}
				if record == nil {
					writeAuthError(w, errors.ErrUnauthorized)
					return
				}

				if err := c.SetAccessRecord(ctx, accessKey, record, cacheTTL); err != nil {
					logger.Warn("Failed to cache access record", zap.Error(err))
				}
			}

			next.ServeHTTP(w, r.WithContext(withAccessRecord(ctx, record)))
		})
	}
}

func withAccessRecord(ctx context.Context, record *models.AccessRecord) context.Context {
	return context.WithValue(ctx, AccessRecordKey, record)
}

// AccessRecordFrom extracts the resolved access record from the request
// context, if any.
func AccessRecordFrom(ctx context.Context) *models.AccessRecord {
	record, _ := ctx.Value(AccessRecordKey).(*models.AccessRecord)
	return record
}
