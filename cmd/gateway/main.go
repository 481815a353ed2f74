package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/osu-healthapp/portal-gateway/internal/api/router"
	"github.com/osu-healthapp/portal-gateway/internal/booking"
	"github.com/osu-healthapp/portal-gateway/internal/cache"
	appconfig "github.com/osu-healthapp/portal-gateway/internal/config"
	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/http/handlers"
	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err == nil {
		fmt.Println("loaded configuration from .env")
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting portal gateway",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendBaseURL,
	)

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "tz", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	portalMetrics := metrics.NewPortalMetrics(reg)

	// Backend client. The gateway forwards browser cookies per request, so
	// no shared cookie jar.
	client, err := healthapi.New(healthapi.Config{
		BaseURL: cfg.BackendBaseURL,
		Timeout: cfg.BackendTimeout,
		Metrics: portalMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to create backend client", "error", err)
		os.Exit(1)
	}

	// Redis for the identity cache and booking idempotency guard. The
	// gateway starts without it, degraded.
	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOptions)

	var (
		identities *cache.IdentityCache
		guard      *cache.IdempotencyGuard
	)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, identity cache and idempotency guard disabled", "addr", cfg.RedisAddr, "error", err)
	} else {
		identities = cache.NewIdentityCache(redisClient, cfg.IdentityCacheTTL, portalMetrics)
		guard = cache.NewIdempotencyGuard(redisClient, cfg.IdempotencyTTL)
	}
	cancelPing()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(client, identities, logger)
	providersHandler := handlers.NewProvidersHandler(client, logger)
	notesHandler := handlers.NewNotesHandler(client, logger)
	var bookingGuard booking.Guard
	if guard != nil {
		bookingGuard = guard
	}
	appointmentsHandler := handlers.NewAppointmentsHandler(client, bookingGuard, portalMetrics, logger, cfg.AppointmentDuration, loc)
	adminHandler := handlers.NewAdminHandler(client, logger)
	healthMetricsHandler := handlers.NewHealthMetricsHandler(client, logger)
	opsHandler := handlers.NewOpsHandler(identities, logger)

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		Auth:               authHandler,
		Providers:          providersHandler,
		Appointments:       appointmentsHandler,
		Notes:              notesHandler,
		Admin:              adminHandler,
		HealthMetrics:      healthMetricsHandler,
		Ops:                opsHandler,
		OpsAuthSecret:      cfg.OpsJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	_ = redisClient.Close()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
