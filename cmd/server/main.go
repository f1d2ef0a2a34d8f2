package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oauth-refresh/internal/auth"
	"oauth-refresh/internal/cache"
	"oauth-refresh/internal/config"
	"oauth-refresh/internal/database"
	"oauth-refresh/internal/handlers"
	"oauth-refresh/internal/metrics"
	"oauth-refresh/internal/refresh"
	"oauth-refresh/internal/secrets"
	"oauth-refresh/internal/template"
	"oauth-refresh/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting oauth refresh service")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize database
	ctx := context.Background()
	repo, err := database.NewRepository(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	// Initialize cache
	cacheClient, err := cache.NewCache(cfg.RedisURL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer cacheClient.Close()

	// Shared HTTP client, pooled and safe for concurrent use
	httpClient := transport.NewClient(cfg.HTTPTimeout)

	// Initialize the refresh pipeline
	engine := template.New()
	secretsClient := secrets.NewHTTPClient(
		cfg.SecretsGetURL,
		cfg.SecretsCreateURL,
		cfg.AuthHeader,
		httpClient,
		repo,
		logger,
	)
	trigger := refresh.NewTrigger(repo, secretsClient, engine, httpClient, logger)
	refreshMetrics := metrics.New(prometheus.DefaultRegisterer)
	refresher := refresh.NewRefresher(repo, trigger, refreshMetrics, logger, cfg.MaxConcurrentRefresh)

	// Admin tokens
	tokens := auth.NewAdminTokenManager(cfg.AdminSecret, cfg.JWTIssuer, cfg.JWTAudience)

	// Scheduler loop: drive discovery cycles at a fixed interval
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	go func() {
		ticker := time.NewTicker(cfg.SleepTimer)
		defer ticker.Stop()

		for {
			if err := refresher.Refresh(schedulerCtx, cfg.RefreshBefore); err != nil {
				logger.Warn("Refresh cycle failed", zap.Error(err))
			}

			select {
			case <-ticker.C:
			case <-schedulerCtx.Done():
				return
			}
		}
	}()

	// Initialize handlers
	stateHandler := handlers.NewStateHandler(refresher, logger)
	triggerHandler := handlers.NewTriggerHandler(repo, trigger, logger)

	// Setup router
	router := SetupRouter(stateHandler, triggerHandler, tokens, repo, cacheClient, RouterConfig{
		AuthHeader:           cfg.AuthHeader,
		AdminHeader:          cfg.AdminHeader,
		RateLimit:            cfg.RateLimit,
		RateLimitWindow:      cfg.RateLimitWindow,
		AccessRecordCacheTTL: cfg.AccessRecordCacheTTL,
	}, logger)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	stopScheduler()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
