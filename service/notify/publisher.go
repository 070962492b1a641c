package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the JetStream stream for notifications.
	StreamName = "NOTIFICATIONS"

	// SubjectPrefix prefixes every notification subject.
	SubjectPrefix = "notifications."

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + "*"

	// StreamRetention is how long notifications are kept. Toasts are transient.
	StreamRetention = time.Hour
)

// Publisher publishes notifications to NATS JetStream.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists.
func NewPublisher(natsURL string, logger *slog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("solwallet-notify"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}

	if err := EnsureStream(context.Background(), js, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS notification publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return p, nil
}

// EnsureStream creates the notification stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		logger.Debug("JetStream stream already exists", "stream", StreamName)
		return nil
	}

	logger.Info("creating JetStream stream", "stream", StreamName)

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Wallet dashboard user notifications",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.MemoryStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Notify publishes n to "notifications.{account}".
func (p *Publisher) Notify(ctx context.Context, n Notification) error {
	subject := Subject(n)

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.Debug("published notification",
		"subject", subject,
		"level", n.Level,
	)
	return nil
}

// Close closes the connection to NATS.
func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS notification publisher closed")
	}
	return nil
}

var _ Notifier = (*Publisher)(nil)
