package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

var (
	// ErrWalletNotFound is returned when no adapter is registered under the requested name.
	ErrWalletNotFound = errors.New("wallet adapter not found")

	// ErrWalletNotReady is returned when the adapter has no compatible wallet installed.
	ErrWalletNotReady = errors.New("wallet not ready")

	// ErrNotConnected is returned by operations that need an active wallet session.
	ErrNotConnected = errors.New("wallet not connected")
)

// Endpoint identifies the network the session talks to.
type Endpoint struct {
	Cluster string `json:"cluster"`
	RPCURL  string `json:"rpc_url"`
}

// EventKind describes what changed in the session.
type EventKind string

const (
	EventConnected       EventKind = "connected"
	EventDisconnected    EventKind = "disconnected"
	EventEndpointChanged EventKind = "endpoint_changed"
)

// Event is delivered to subscribers after every identity or endpoint change.
type Event struct {
	Kind      EventKind
	Adapter   string
	Identity  solanago.PublicKey
	Connected bool
	Endpoint  Endpoint
}

// ClientFactory builds a network client for an endpoint.
type ClientFactory func(Endpoint) *solana.Client

// Config holds the session's collaborators.
type Config struct {
	Endpoint  Endpoint
	NewClient ClientFactory
	Adapters  []Adapter
	Logger    *slog.Logger
	Metrics   *metrics.Metrics // optional
}

// AdapterInfo describes an adapter for the wallet picker.
type AdapterInfo struct {
	Name            string `json:"name"`
	Ready           bool   `json:"ready"`
	AutoConnectable bool   `json:"auto_connectable"`
	Active          bool   `json:"active"`
}

// Session is the single wallet session for the process. It tracks the connected
// identity and the selected endpoint and notifies subscribers when either changes.
type Session struct {
	// opMu serializes Connect, Disconnect and SwitchEndpoint including the publish of
	// their event, so subscribers observe changes in the order they were applied.
	opMu sync.Mutex

	mu        sync.RWMutex
	adapters  []Adapter
	active    Adapter
	identity  solanago.PublicKey
	connected bool
	endpoint  Endpoint
	network   *solana.Client
	newClient ClientFactory

	subMu     sync.Mutex
	listeners map[int]func(Event)
	nextID    int

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSession creates a disconnected session bound to cfg.Endpoint.
func NewSession(cfg Config) (*Session, error) {
	if cfg.NewClient == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if cfg.Endpoint.RPCURL == "" {
		return nil, fmt.Errorf("endpoint RPC URL is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	seen := make(map[string]bool)
	for _, a := range cfg.Adapters {
		if seen[a.Name()] {
			return nil, fmt.Errorf("duplicate wallet adapter %q", a.Name())
		}
		seen[a.Name()] = true
	}

	return &Session{
		adapters:  cfg.Adapters,
		endpoint:  cfg.Endpoint,
		network:   cfg.NewClient(cfg.Endpoint),
		newClient: cfg.NewClient,
		listeners: make(map[int]func(Event)),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Adapters lists the registered adapters in registration order.
func (s *Session) Adapters() []AdapterInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]AdapterInfo, 0, len(s.adapters))
	for _, a := range s.adapters {
		out = append(out, AdapterInfo{
			Name:            a.Name(),
			Ready:           a.Ready(),
			AutoConnectable: a.AutoConnectable(),
			Active:          s.connected && s.active == a,
		})
	}
	return out
}

// Start connects the first ready, auto-connectable adapter. Failures are logged and the
// session stays disconnected.
func (s *Session) Start(ctx context.Context) {
	for _, a := range s.adapters {
		if !a.AutoConnectable() || !a.Ready() {
			continue
		}
		if _, err := s.Connect(ctx, a.Name()); err != nil {
			s.logger.WarnContext(ctx, "auto-connect failed",
				"adapter", a.Name(),
				"error", err,
			)
			continue
		}
		return
	}
	s.logger.DebugContext(ctx, "no wallet auto-connected")
}

// Connect activates the named adapter and returns the account identity.
// Connecting while another adapter is active disconnects it first.
func (s *Session) Connect(ctx context.Context, name string) (solanago.PublicKey, error) {
	adapter := s.find(name)
	if adapter == nil {
		return solanago.PublicKey{}, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if !adapter.Ready() {
		s.recordEvent(name, "not_ready")
		return solanago.PublicKey{}, fmt.Errorf("%w: %s", ErrWalletNotReady, name)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	if s.connected && s.active == adapter {
		identity := s.identity
		s.mu.RUnlock()
		return identity, nil
	}
	switching := s.connected
	s.mu.RUnlock()

	if switching {
		s.disconnect(ctx)
	}

	identity, err := adapter.Connect(ctx)
	if err != nil {
		s.recordEvent(name, "error")
		return solanago.PublicKey{}, fmt.Errorf("failed to connect %s: %w", name, err)
	}

	s.mu.Lock()
	s.active = adapter
	s.identity = identity
	s.connected = true
	endpoint := s.endpoint
	s.mu.Unlock()

	s.recordEvent(name, "connected")
	if s.metrics != nil {
		s.metrics.SetWalletConnected(true)
	}
	s.logger.InfoContext(ctx, "wallet connected",
		"adapter", name,
		"account", identity.String(),
		"cluster", endpoint.Cluster,
	)

	s.publish(Event{
		Kind:      EventConnected,
		Adapter:   name,
		Identity:  identity,
		Connected: true,
		Endpoint:  endpoint,
	})
	return identity, nil
}

// Disconnect ends the session. Disconnecting an idle session is a no-op.
func (s *Session) Disconnect(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.disconnect(ctx)
	return nil
}

// disconnect requires opMu.
func (s *Session) disconnect(ctx context.Context) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	adapter := s.active
	identity := s.identity
	s.active = nil
	s.identity = solanago.PublicKey{}
	s.connected = false
	endpoint := s.endpoint
	s.mu.Unlock()

	if err := adapter.Disconnect(ctx); err != nil {
		// The session is already cleared; the adapter error is only reported.
		s.logger.WarnContext(ctx, "adapter disconnect failed",
			"adapter", adapter.Name(),
			"error", err,
		)
	}

	s.recordEvent(adapter.Name(), "disconnected")
	if s.metrics != nil {
		s.metrics.SetWalletConnected(false)
	}
	s.logger.InfoContext(ctx, "wallet disconnected",
		"adapter", adapter.Name(),
		"account", identity.String(),
	)

	s.publish(Event{
		Kind:     EventDisconnected,
		Adapter:  adapter.Name(),
		Endpoint: endpoint,
	})
}

// Identity returns the connected account, if any.
func (s *Session) Identity() (solanago.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.connected
}

// Endpoint returns the currently selected endpoint.
func (s *Session) Endpoint() Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// Network returns the client for the currently selected endpoint.
func (s *Session) Network() *solana.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network
}

// SwitchEndpoint selects a different network endpoint and notifies subscribers.
func (s *Session) SwitchEndpoint(ctx context.Context, endpoint Endpoint) error {
	if endpoint.RPCURL == "" {
		return fmt.Errorf("endpoint RPC URL is required")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	client := s.newClient(endpoint)

	s.mu.Lock()
	if s.endpoint == endpoint {
		s.mu.Unlock()
		return nil
	}
	s.endpoint = endpoint
	s.network = client
	identity := s.identity
	connected := s.connected
	adapterName := ""
	if s.active != nil {
		adapterName = s.active.Name()
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "endpoint changed",
		"cluster", endpoint.Cluster,
		"rpc_url", endpoint.RPCURL,
	)

	s.publish(Event{
		Kind:      EventEndpointChanged,
		Adapter:   adapterName,
		Identity:  identity,
		Connected: connected,
		Endpoint:  endpoint,
	})
	return nil
}

// SendTransaction has the connected wallet sign tx as fee payer, adds signatures from
// extraSigners, and broadcasts it through the current endpoint.
func (s *Session) SendTransaction(ctx context.Context, tx *solanago.Transaction, extraSigners ...solanago.PrivateKey) (solanago.Signature, error) {
	s.mu.RLock()
	adapter := s.active
	connected := s.connected
	network := s.network
	s.mu.RUnlock()

	if !connected {
		return solanago.Signature{}, ErrNotConnected
	}

	if len(extraSigners) > 0 {
		_, err := tx.PartialSign(func(k solanago.PublicKey) *solanago.PrivateKey {
			for i := range extraSigners {
				if extraSigners[i].PublicKey().Equals(k) {
					return &extraSigners[i]
				}
			}
			return nil
		})
		if err != nil {
			return solanago.Signature{}, fmt.Errorf("failed to co-sign transaction: %w", err)
		}
	}

	if err := adapter.SignTransaction(ctx, tx); err != nil {
		return solanago.Signature{}, fmt.Errorf("wallet did not sign: %w", err)
	}

	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return solanago.Signature{}, fmt.Errorf("transaction is missing signature %d", i)
		}
	}

	return network.SendTransaction(ctx, tx)
}

// Subscribe registers fn for session events and returns a function that removes it.
// fn is called synchronously on the goroutine that made the change, in the order changes
// were applied. It must not call Connect, Disconnect or SwitchEndpoint.
func (s *Session) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.listeners, id)
		s.subMu.Unlock()
	}
}

// Close disconnects the wallet and drops every subscriber.
func (s *Session) Close(ctx context.Context) error {
	err := s.Disconnect(ctx)

	s.subMu.Lock()
	s.listeners = make(map[int]func(Event))
	s.subMu.Unlock()

	return err
}

func (s *Session) find(name string) Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (s *Session) publish(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Session) recordEvent(adapter, event string) {
	if s.metrics != nil {
		s.metrics.RecordWalletEvent(adapter, event)
	}
}

var _ solana.Provider = (*Session)(nil)
