package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solwallet/service/dashboard"
	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dashboard is the view model the HTTP layer drives.
type Dashboard interface {
	State() dashboard.State
	Adapters() []wallet.AdapterInfo
	Connect(ctx context.Context, name string) (solanago.PublicKey, error)
	Disconnect(ctx context.Context) error
	CopyAddress(ctx context.Context) (string, error)
	CreateToken(ctx context.Context) (*mint.Result, error)
	Refresh(ctx context.Context) error
	SwitchEndpoint(ctx context.Context, endpoint wallet.Endpoint) error
}

// Server represents the HTTP server for the wallet dashboard.
type Server struct {
	addr        string
	dash        Dashboard
	stream      NotificationStream
	renderer    *TemplateRenderer
	explorerURL string
	metrics     *metrics.Metrics
	logger      *slog.Logger
	server      *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The stream is optional - if nil, the SSE endpoint won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, dash Dashboard, stream NotificationStream, explorerURL string, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:        addr,
		dash:        dash,
		stream:      stream,
		explorerURL: explorerURL,
		metrics:     m,
		logger:      logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Dashboard routes
	route("GET /api/v1/state", "/api/v1/state", handleGetState(s.dash))
	route("GET /api/v1/adapters", "/api/v1/adapters", handleListAdapters(s.dash))
	route("POST /api/v1/connect", "/api/v1/connect", handleConnect(s.dash, s.logger))
	route("POST /api/v1/disconnect", "/api/v1/disconnect", handleDisconnect(s.dash, s.logger))
	route("POST /api/v1/copy-address", "/api/v1/copy-address", handleCopyAddress(s.dash, s.logger))
	route("POST /api/v1/tokens", "/api/v1/tokens", handleCreateToken(s.dash, s.explorerURL, s.logger))
	route("POST /api/v1/refresh", "/api/v1/refresh", handleRefresh(s.dash, s.logger))
	route("PUT /api/v1/endpoint", "/api/v1/endpoint", handleSwitchEndpoint(s.dash, s.logger))

	// SSE streaming endpoint (if a notification stream is configured)
	if s.stream != nil {
		route("GET /api/v1/stream/notifications", "/api/v1/stream/notifications", handleStreamNotifications(s.stream, s.metrics, s.logger))
	} else {
		s.logger.Warn("notification stream not configured, streaming endpoint disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		mux.HandleFunc("GET /{$}", handleDashboardPage(s.renderer, s.dash))
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close the stream first (disconnects all clients)
	if s.stream != nil {
		s.stream.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
