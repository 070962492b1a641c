package temporal

import (
	"fmt"
	"log/slog"

	"github.com/brojonat/solwallet/service/metrics"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings. Ignored when Client is set.
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Client reuses an existing connection instead of dialing a new one.
	Client client.Client

	// Dependencies
	Minter  Minter
	Metrics *metrics.Metrics // Optional: if nil, no metrics will be recorded
	Logger  *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client     client.Client
	ownsClient bool
	worker     worker.Worker
	logger     *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
// The worker will process workflows and activities on the configured task queue.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Minter == nil {
		return nil, fmt.Errorf("minter is required")
	}

	logger := config.Logger.With("component", "temporal_worker")

	c := config.Client
	ownsClient := false
	if c == nil {
		logger.Info("creating temporal worker",
			"host", config.TemporalHost,
			"namespace", config.TemporalNamespace,
			"task_queue", config.TaskQueue,
		)

		var err error
		c, err = client.Dial(client.Options{
			HostPort:  config.TemporalHost,
			Namespace: config.TemporalNamespace,
			Logger:    newTemporalLogger(logger),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to temporal: %w", err)
		}
		ownsClient = true
	}

	// One signing wallet: token creations are processed one at a time.
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	w.RegisterWorkflow(CreateTokenWorkflow)
	logger.Info("registered workflow", "name", "CreateTokenWorkflow")

	activities := NewActivities(config.Minter, config.Metrics, logger)
	w.RegisterActivity(activities.SubmitMintAccount)
	w.RegisterActivity(activities.FetchTokenBalance)

	logger.Info("registered activities",
		"activities", []string{"SubmitMintAccount", "FetchTokenBalance"},
	)

	return &Worker{
		client:     c,
		ownsClient: ownsClient,
		worker:     w,
		logger:     logger,
	}, nil
}

// Start begins processing in the background and returns immediately.
func (w *Worker) Start() error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	return nil
}

// Run processes workflows and activities until an interrupt signal or an error.
func (w *Worker) Run() error {
	w.logger.Info("running temporal worker")
	err := w.worker.Run(worker.InterruptCh())
	if err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping temporal worker")
	w.worker.Stop()
	if w.ownsClient {
		w.client.Close()
	}
	w.logger.Info("temporal worker stopped")
}
