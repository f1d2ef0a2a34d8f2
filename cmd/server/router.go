package main

import (
	"time"

	"oauth-refresh/internal/auth"
	"oauth-refresh/internal/cache"
	"oauth-refresh/internal/database"
	"oauth-refresh/internal/handlers"
	"oauth-refresh/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig carries everything the router needs beyond the handlers
type RouterConfig struct {
	AuthHeader           string
	AdminHeader          string
	RateLimit            int
	RateLimitWindow      time.Duration
	AccessRecordCacheTTL time.Duration
}

// SetupRouter configures and returns the HTTP router with all routes and middleware
func SetupRouter(
	stateHandler *handlers.StateHandler,
	triggerHandler *handlers.TriggerHandler,
	tokens *auth.AdminTokenManager,
	repo database.Repository,
	cacheClient *cache.Cache,
	cfg RouterConfig,
	logger *zap.Logger,
) *mux.Router {
	router := mux.NewRouter()

	// Add logging and rate limiting middleware
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RateLimitMiddleware(cacheClient, logger, cfg.RateLimit, cfg.RateLimitWindow))

	// Health check
	router.HandleFunc("/v1/health_check", handlers.HandleHealth).Methods("GET")

	// Admin endpoints (admin-token guarded)
	admin := router.PathPrefix("/v1/admin").Subrouter()
	admin.Use(middleware.AdminMiddleware(tokens, cfg.AdminHeader, logger))
	admin.HandleFunc("/get_state", stateHandler.HandleState).Methods("GET")

	// Integration endpoints (access-key guarded)
	integration := router.PathPrefix("/v1/integration").Subrouter()
	integration.Use(middleware.AccessMiddleware(repo, cacheClient, cfg.AuthHeader, cfg.AccessRecordCacheTTL, logger))
	integration.HandleFunc("/trigger/{id}", triggerHandler.HandleTrigger).Methods("POST")

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
