package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// Client starts token creation workflows on Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// RunCreateToken starts a CreateTokenWorkflow and blocks until it completes.
func (c *Client) RunCreateToken(ctx context.Context, input CreateTokenInput) (*CreateTokenResult, error) {
	id := workflowID(input.Owner)

	c.logger.DebugContext(ctx, "starting token creation workflow",
		"owner", input.Owner,
		"workflow_id", id,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        id,
		TaskQueue: c.taskQueue,
	}, CreateTokenWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow %q: %w", id, err)
	}

	var result CreateTokenResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("workflow %q failed: %w", id, err)
	}

	c.logger.InfoContext(ctx, "token creation workflow completed",
		"owner", result.Owner,
		"mint", result.Mint,
		"workflow_id", id,
	)
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// workflowID generates a unique workflow ID for a token creation request.
func workflowID(owner string) string {
	if owner == "" {
		owner = "anon"
	}
	return "create-token-" + owner + "-" + uuid.NewString()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
