package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec

	// Account refresh Metrics
	refreshesTotal         *prometheus.CounterVec
	refreshDuration        *prometheus.HistogramVec
	refreshTransactions    prometheus.Histogram
	staleResultsDiscarded  *prometheus.CounterVec

	// Wallet session Metrics
	walletSessionEvents *prometheus.CounterVec
	walletConnected     prometheus.Gauge

	// Token mint Metrics
	mintCreationsTotal *prometheus.CounterVec
	mintStepDuration   *prometheus.HistogramVec

	// Notification Metrics
	notificationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),

		// Account refresh Metrics
		refreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_refreshes_total",
				Help: "Total number of account refresh cycles by status",
			},
			[]string{"status"},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "account_refresh_duration_seconds",
				Help:    "Duration of account refresh cycles in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		refreshTransactions: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "account_refresh_transactions",
				Help:    "Number of transaction summaries published per refresh",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		staleResultsDiscarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_stale_results_discarded_total",
				Help: "Total number of fetch results discarded because the account or endpoint changed",
			},
			[]string{"kind"},
		),

		// Wallet session Metrics
		walletSessionEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_session_events_total",
				Help: "Total number of wallet session events by adapter and event",
			},
			[]string{"adapter", "event"},
		),
		walletConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wallet_connected",
				Help: "1 if a wallet session is active, 0 otherwise",
			},
		),

		// Token mint Metrics
		mintCreationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "token_mint_creations_total",
				Help: "Total number of token mint creation attempts by status",
			},
			[]string{"status"},
		),
		mintStepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "token_mint_step_duration_seconds",
				Help:    "Duration of token mint pipeline steps in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"step", "status"},
		),

		// Notification Metrics
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Total number of user notifications emitted by level",
			},
			[]string{"level"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active notification SSE connections",
			},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// Account refresh metric helpers

// RecordRefresh records a completed refresh cycle and how many summaries it produced.
func (m *Metrics) RecordRefresh(status string, duration float64, transactions int) {
	m.refreshesTotal.WithLabelValues(status).Inc()
	m.refreshDuration.WithLabelValues(status).Observe(duration)
	if status == "success" {
		m.refreshTransactions.Observe(float64(transactions))
	}
}

// RecordStaleDiscard records a result dropped by the stale-result guard.
func (m *Metrics) RecordStaleDiscard(kind string) {
	m.staleResultsDiscarded.WithLabelValues(kind).Inc()
}

// Wallet session metric helpers

// RecordWalletEvent records a connect/disconnect/error event for an adapter.
func (m *Metrics) RecordWalletEvent(adapter, event string) {
	m.walletSessionEvents.WithLabelValues(adapter, event).Inc()
}

// SetWalletConnected sets the connected gauge.
func (m *Metrics) SetWalletConnected(connected bool) {
	if connected {
		m.walletConnected.Set(1)
		return
	}
	m.walletConnected.Set(0)
}

// Token mint metric helpers

// RecordMintCreation records the outcome of a token creation attempt.
func (m *Metrics) RecordMintCreation(status string) {
	m.mintCreationsTotal.WithLabelValues(status).Inc()
}

// RecordMintStep records the duration of a single pipeline step.
func (m *Metrics) RecordMintStep(step, status string, duration float64) {
	m.mintStepDuration.WithLabelValues(step, status).Observe(duration)
}

// Notification metric helpers

// RecordNotification records an emitted user notification.
func (m *Metrics) RecordNotification(level string) {
	m.notificationsTotal.WithLabelValues(level).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
