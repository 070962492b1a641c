package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solwallet/service/config"
	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/temporal"
	"github.com/brojonat/solwallet/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// The standalone worker signs with the keygen-file wallet from WALLET_KEYPAIR_PATH.
// Dashboards that connect other adapters host their own worker in-process.
func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	if cfg.TemporalHost == "" {
		logger.Error("TEMPORAL_HOST is required to run the worker")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	session, err := wallet.NewSession(wallet.Config{
		Endpoint: wallet.Endpoint{Cluster: cfg.SolanaCluster, RPCURL: cfg.SolanaRPCURL},
		NewClient: func(ep wallet.Endpoint) *solana.Client {
			return solana.NewClient(solana.NewRPCClient(ep.RPCURL), ep.Cluster, metricsCollector, logger)
		},
		Adapters: []wallet.Adapter{wallet.NewKeygenFileAdapter(cfg.WalletKeypairPath)},
		Logger:   logger,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logger.Error("failed to create wallet session", "error", err)
		os.Exit(1)
	}
	session.Start(ctx)

	identity, ok := session.Identity()
	if !ok {
		// Activities fail with a non-retryable wallet-not-connected error until a key is present.
		logger.Warn("no wallet connected, token creation will be rejected",
			"keypair_path", cfg.WalletKeypairPath,
		)
	} else {
		logger.Info("wallet connected", "identity", identity.String())
	}

	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Minter:            mint.NewWorkflow(session, cfg.ConfirmTimeout, metricsCollector, logger),
		Metrics:           metricsCollector,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"cluster", cfg.SolanaCluster,
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		logger.Info("starting temporal worker")
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		if err != nil {
			logger.Error("temporal worker error", "error", err)
			os.Exit(1)
		}
		sig := <-shutdown
		logger.Info("shutdown signal received", "signal", sig.String())
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Stop worker gracefully
	logger.Info("stopping temporal worker")
	worker.Stop()
	if err := session.Close(ctx); err != nil {
		logger.Warn("failed to close wallet session", "error", err)
	}
	logger.Info("shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
