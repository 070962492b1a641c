package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/notify"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NotificationStream delivers notifications published after Stream is called until ctx is
// done. An empty account streams notifications for every account.
type NotificationStream interface {
	Stream(ctx context.Context, account string) (<-chan notify.Notification, error)
	Close() error
}

// SSEPublisher streams notifications from NATS JetStream.
type SSEPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewSSEPublisher creates a new SSE publisher that subscribes to NATS internally.
func NewSSEPublisher(natsURL string, logger *slog.Logger) (*SSEPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("solwallet-sse-publisher"),
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

	if err := notify.EnsureStream(context.Background(), js, logger); err != nil {
		nc.Close()
		return nil, err
	}

	logger.Info("SSE publisher initialized", "nats_url", natsURL)

	return &SSEPublisher{
		nc:     nc,
		js:     js,
		logger: logger,
	}, nil
}

// Stream creates an ephemeral consumer filtered to the account's subject.
func (p *SSEPublisher) Stream(ctx context.Context, account string) (<-chan notify.Notification, error) {
	subject := notify.StreamSubjects
	if account != "" {
		subject = notify.SubjectPrefix + account
	}

	cons, err := p.js.CreateOrUpdateConsumer(ctx, notify.StreamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	out := make(chan notify.Notification, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		defer msg.Ack()

		var n notify.Notification
		if err := json.Unmarshal(msg.Data(), &n); err != nil {
			p.logger.WarnContext(ctx, "failed to unmarshal notification", "error", err)
			return
		}
		select {
		case out <- n:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()

	return out, nil
}

// Close closes the NATS connection.
func (p *SSEPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("SSE publisher closed")
	}
	return nil
}

// FeedStream streams notifications from the in-memory feed.
type FeedStream struct {
	feed *notify.Feed
}

// NewFeedStream wraps a feed as a NotificationStream.
func NewFeedStream(feed *notify.Feed) *FeedStream {
	return &FeedStream{feed: feed}
}

// Stream subscribes to the feed, filtering by account.
func (f *FeedStream) Stream(ctx context.Context, account string) (<-chan notify.Notification, error) {
	in, cancel := f.feed.Subscribe(10)
	out := make(chan notify.Notification, 10)

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case n, ok := <-in:
				if !ok {
					return
				}
				if account != "" && n.Account != account {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close is a no-op; subscriptions end with their context.
func (f *FeedStream) Close() error {
	return nil
}

// handleStreamNotifications handles SSE streaming for notifications.
// GET /api/v1/stream/notifications?account={address}
func handleStreamNotifications(stream NotificationStream, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := r.URL.Query().Get("account")
		accountDesc := "all accounts"
		if account != "" {
			if err := validateAddress(account); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
			accountDesc = account
		}

		ctx := r.Context()
		notifications, err := stream.Stream(ctx, account)
		if err != nil {
			logger.ErrorContext(ctx, "failed to subscribe to notifications",
				"account", accountDesc,
				"error", err,
			)
			writeError(w, "failed to subscribe", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}

		if m != nil {
			m.RecordSSEConnectionChange(1)
			defer m.RecordSSEConnectionChange(-1)
		}

		logger.DebugContext(ctx, "SSE client connected",
			"account", accountDesc,
			"remote_addr", r.RemoteAddr,
		)

		fmt.Fprintf(w, "event: connected\ndata: {\"account\":%q}\n\n", accountDesc)
		flush()

		keepalive := time.NewTicker(10 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case <-keepalive.C:
				fmt.Fprintf(w, ": keepalive\n\n")
				flush()

			case n, ok := <-notifications:
				if !ok {
					return
				}
				data, err := json.Marshal(n)
				if err != nil {
					logger.WarnContext(ctx, "failed to marshal notification", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data)
				flush()

			case <-ctx.Done():
				logger.DebugContext(ctx, "SSE client disconnected",
					"account", accountDesc,
					"remote_addr", r.RemoteAddr,
				)
				return
			}
		}
	})
}
