package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/app"
	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/config"
	"github.com/bimakw/yield-aggregator/internal/presentation/handlers"
	"github.com/bimakw/yield-aggregator/internal/presentation/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := app.SetupLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting yield aggregator API",
		zap.Int("port", cfg.API.Port),
		zap.String("storage", cfg.Storage.Driver),
	)

	application, err := app.New(cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer application.Close()

	// Create services
	positionService := services.NewPositionService(
		application.Aggregator,
		application.Prices,
		application.Ledgers,
		application.Cache,
		cfg.API.CacheTTL,
		cfg.API.MaxAddresses,
		logger,
	)

	// Create handlers
	positionsHandler := handlers.NewPositionsHandler(positionService, logger)

	var dbChecker, cacheChecker handlers.HealthChecker
	if application.DB != nil {
		dbChecker = application.DB
	}
	if application.Cache != nil {
		cacheChecker = application.Cache
	}
	healthHandler := handlers.NewHealthHandler(dbChecker, cacheChecker, handlers.HealthCheckFunc(application.ChainHealth))

	// Setup router
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RateLimiter(cfg.API.RateLimitRPS))

	// Health endpoints (no rate limiting)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/live", healthHandler.Live)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		positionsHandler.RegisterRoutes(r)
	})

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Run server in goroutine
	go func() {
		logger.Info("API server starting", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
}
