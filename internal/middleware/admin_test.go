package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"oauth-refresh/internal/auth"
	"oauth-refresh/internal/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminHeader = "x-service-admin-token"

func adminProtected(t *testing.T, tokens *auth.AdminTokenManager) http.Handler {
	t.Helper()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return middleware.AdminMiddleware(tokens, adminHeader, zap.NewNop())(next)
}

func TestAdminMiddleware_ValidTokenPasses(t *testing.T) {
	tokens := auth.NewAdminTokenManager("test-secret", "oauth-refresh", "integration-team")
	handler := adminProtected(t, tokens)

	token, err := tokens.Generate(1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/get_state", nil)
	req.Header.Set(adminHeader, token)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminMiddleware_MissingTokenRejected(t *testing.T) {
	tokens := auth.NewAdminTokenManager("test-secret", "oauth-refresh", "integration-team")
	handler := adminProtected(t, tokens)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/get_state", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "error_description")
}

func TestAdminMiddleware_ForgedTokenRejected(t *testing.T) {
	tokens := auth.NewAdminTokenManager("test-secret", "oauth-refresh", "integration-team")
	forger := auth.NewAdminTokenManager("other-secret", "oauth-refresh", "integration-team")
	handler := adminProtected(t, tokens)

	forged, err := forger.Generate(1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/get_state", nil)
	req.Header.Set(adminHeader, forged)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
