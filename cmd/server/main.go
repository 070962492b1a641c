package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solwallet/service/account"
	"github.com/brojonat/solwallet/service/config"
	"github.com/brojonat/solwallet/service/dashboard"
	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/notify"
	"github.com/brojonat/solwallet/service/server"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/temporal"
	"github.com/brojonat/solwallet/service/wallet"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"cluster", cfg.SolanaCluster,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	session, err := newSession(cfg, m, logger)
	if err != nil {
		logger.Error("failed to create wallet session", "error", err)
		os.Exit(1)
	}

	fetcher := account.NewFetcher(session, cfg.HistoryLimit, cfg.FetchConcurrency, m, logger)
	feed := notify.NewFeed(notify.DefaultFeedCapacity, m)

	// Notifications fan out to NATS when configured; the SSE endpoint reads them back from
	// JetStream so that every server replica sees them.
	var (
		notifier notify.Notifier
		stream   server.NotificationStream = server.NewFeedStream(feed)
	)
	if cfg.NATSURL != "" {
		publisher, err := notify.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		notifier = publisher

		ssePublisher, err := server.NewSSEPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create SSE publisher", "error", err)
			os.Exit(1)
		}
		stream = ssePublisher
		logger.Info("notification streaming via NATS", "nats_url", cfg.NATSURL)
	}

	// Token creation runs in-process unless Temporal is configured, in which case the
	// workflow is executed durably by a worker hosted in this process. The worker must live
	// here because only this process holds the connected wallet's signing key.
	workflow := mint.NewWorkflow(session, cfg.ConfirmTimeout, m, logger)
	var minter mint.Executor = workflow
	if cfg.TemporalHost != "" {
		temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
		if err != nil {
			logger.Error("failed to connect to temporal", "error", err)
			os.Exit(1)
		}
		defer temporalClient.Close()

		w, err := temporal.NewWorker(temporal.WorkerConfig{
			TaskQueue: cfg.TemporalTaskQueue,
			Client:    temporalClient.SDKClient(),
			Minter:    workflow,
			Metrics:   m,
			Logger:    logger,
		})
		if err != nil {
			logger.Error("failed to create temporal worker", "error", err)
			os.Exit(1)
		}
		if err := w.Start(); err != nil {
			logger.Error("failed to start temporal worker", "error", err)
			os.Exit(1)
		}
		defer w.Stop()

		minter = temporal.NewExecutor(temporalClient, session)
		logger.Info("token creation via temporal",
			"host", cfg.TemporalHost,
			"namespace", cfg.TemporalNamespace,
			"task_queue", cfg.TemporalTaskQueue,
		)
	}

	dash, err := dashboard.New(dashboard.Options{
		Session:         session,
		Fetcher:         fetcher,
		Minter:          minter,
		Notifier:        notifier,
		Feed:            feed,
		ExplorerURL:     cfg.ExplorerURL,
		CopyAckDuration: cfg.CopyAckDuration,
		Logger:          logger,
		Metrics:         m,
	})
	if err != nil {
		logger.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}
	defer dash.Close()

	// Reconnect a previously authorized wallet, if any
	session.Start(ctx)

	httpServer := server.New(cfg.ServerAddr, dash, stream, cfg.ExplorerURL, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"solana_rpc", cfg.SolanaRPCURL,
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
		}
		if err := session.Close(shutdownCtx); err != nil {
			logger.Warn("failed to close wallet session", "error", err)
		}

		logger.Info("server shutdown complete")
	}
}

// newSession registers the configured wallet adapters against the configured endpoint.
func newSession(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*wallet.Session, error) {
	return wallet.NewSession(wallet.Config{
		Endpoint: wallet.Endpoint{Cluster: cfg.SolanaCluster, RPCURL: cfg.SolanaRPCURL},
		NewClient: func(ep wallet.Endpoint) *solana.Client {
			return solana.NewClient(solana.NewRPCClient(ep.RPCURL), ep.Cluster, m, logger)
		},
		Adapters: []wallet.Adapter{
			wallet.NewKeygenFileAdapter(cfg.WalletKeypairPath),
			wallet.NewMnemonicAdapter(cfg.WalletMnemonic, cfg.WalletPassphrase),
		},
		Logger:  logger,
		Metrics: m,
	})
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
