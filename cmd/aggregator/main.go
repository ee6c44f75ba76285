package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bimakw/yield-aggregator/internal/app"
	"github.com/bimakw/yield-aggregator/internal/application/services"
	"github.com/bimakw/yield-aggregator/internal/config"
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

	logger.Info("Starting yield aggregator",
		zap.Strings("wallets", cfg.Aggregator.WalletAddresses),
		zap.String("schedule", cfg.Aggregator.Schedule),
		zap.String("storage", cfg.Storage.Driver),
	)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(cfg, prometheus.DefaultRegisterer, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer application.Close()

	runner := &cycleRunner{
		ctx:       ctx,
		app:       application,
		addresses: services.NormalizeAddresses(cfg.Aggregator.WalletAddresses),
		timeout:   cfg.Aggregator.CycleTimeout,
		logger:    logger,
	}
	if len(runner.addresses) == 0 {
		logger.Warn("No wallet addresses configured, cycles will only refresh prices")
	}

	cronLog := cronLogger{logger: logger.Sugar()}
	job := scheduledJob(runner, cronLog)
	scheduler := cron.New(cron.WithLogger(cronLog))
	if _, err := scheduler.AddJob(cfg.Aggregator.Schedule, job); err != nil {
		logger.Fatal("Invalid aggregator schedule", zap.Error(err))
	}

	// Start metrics server
	go startMetricsServer(cfg.Aggregator.MetricsPort, logger)

	// First cycle runs immediately, the rest follow the schedule
	go job.Run()
	scheduler.Start()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Received shutdown signal, stopping aggregator...")

	cancel()
	<-scheduler.Stop().Done()

	logger.Info("Aggregator stopped")
}

// scheduledJob wraps job so that a run overlapping a previous one is skipped
// and a panic is logged instead of crashing the worker
func scheduledJob(job cron.Job, log cron.Logger) cron.Job {
	return cron.NewChain(cron.Recover(log), cron.SkipIfStillRunning(log)).Then(job)
}

// cycleRunner is the scheduled aggregation job
type cycleRunner struct {
	ctx       context.Context
	app       *app.App
	addresses []string
	timeout   time.Duration
	logger    *zap.Logger
}

func (r *cycleRunner) Run() {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	prices := r.app.Prices.Refresh(ctx)
	r.logger.Debug("Prices refreshed", zap.Int("assets", len(prices)))

	if len(r.addresses) == 0 {
		return
	}

	result := r.app.Aggregator.RunCycle(ctx, r.addresses)
	groups, total := services.GroupByProtocol(result.Positions)

	for _, g := range groups {
		fields := []zap.Field{
			zap.String("cycle_id", result.ID.String()),
			zap.String("protocol", string(g.Protocol)),
			zap.Int("positions", g.PositionCount),
			zap.Float64("value_usd", g.TotalValueUSD),
		}
		if g.WeightedAPR7d != nil {
			fields = append(fields, zap.Float64("apr_7d", *g.WeightedAPR7d))
		}
		r.logger.Info("Protocol summary", fields...)
	}

	r.logger.Info("Cycle completed",
		zap.String("cycle_id", result.ID.String()),
		zap.Int("wallets", len(r.addresses)),
		zap.Int("positions", len(result.Positions)),
		zap.Float64("total_value_usd", total),
		zap.Duration("duration", result.Duration),
	)

	if r.app.Cache != nil {
		if err := r.app.Cache.InvalidatePositions(ctx); err != nil {
			r.logger.Warn("Failed to invalidate cached positions", zap.Error(err))
		}
	}
}

// cronLogger routes scheduler logs through zap
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

func startMetricsServer(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Metrics server error", zap.Error(err))
	}
}
