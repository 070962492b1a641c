package wallet

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeAdapter is a scriptable Adapter for session tests.
type fakeAdapter struct {
	name       string
	ready      bool
	auto       bool
	key        solanago.PrivateKey
	connectErr error
	rejectSign bool

	mu          sync.Mutex
	connects    int
	disconnects int
}

func newFakeAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, ready: true, key: solanago.NewWallet().PrivateKey}
}

func (f *fakeAdapter) Name() string          { return f.name }
func (f *fakeAdapter) Ready() bool           { return f.ready }
func (f *fakeAdapter) AutoConnectable() bool { return f.auto }

func (f *fakeAdapter) Connect(ctx context.Context) (solanago.PublicKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return solanago.PublicKey{}, f.connectErr
	}
	return f.key.PublicKey(), nil
}

func (f *fakeAdapter) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeAdapter) SignTransaction(ctx context.Context, tx *solanago.Transaction) error {
	if f.rejectSign {
		return ErrRejected
	}
	_, err := tx.PartialSign(func(k solanago.PublicKey) *solanago.PrivateKey {
		if k.Equals(f.key.PublicKey()) {
			return &f.key
		}
		return nil
	})
	return err
}

type testNetwork struct {
	mu    sync.Mutex
	mocks map[string]*solana.MockRPCClient
}

func (n *testNetwork) factory(ep Endpoint) *solana.Client {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mocks == nil {
		n.mocks = make(map[string]*solana.MockRPCClient)
	}
	mock, ok := n.mocks[ep.RPCURL]
	if !ok {
		mock = solana.NewMockRPCClient()
		n.mocks[ep.RPCURL] = mock
	}
	return solana.NewClient(mock, ep.Cluster, nil, testLogger)
}

func (n *testNetwork) mock(url string) *solana.MockRPCClient {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mocks[url]
}

var devnet = Endpoint{Cluster: "devnet", RPCURL: "http://devnet.test"}

func newTestSession(t *testing.T, adapters ...Adapter) (*Session, *testNetwork) {
	t.Helper()
	network := &testNetwork{}
	s, err := NewSession(Config{
		Endpoint:  devnet,
		NewClient: network.factory,
		Adapters:  adapters,
		Logger:    testLogger,
	})
	require.NoError(t, err)
	return s, network
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventKind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestNewSession_Validation(t *testing.T) {
	network := &testNetwork{}

	_, err := NewSession(Config{Endpoint: devnet})
	assert.Error(t, err)

	_, err = NewSession(Config{NewClient: network.factory})
	assert.Error(t, err)

	_, err = NewSession(Config{
		Endpoint:  devnet,
		NewClient: network.factory,
		Adapters:  []Adapter{newFakeAdapter("a"), newFakeAdapter("a")},
	})
	assert.ErrorContains(t, err, "duplicate")
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown adapter", func(t *testing.T) {
		s, _ := newTestSession(t, newFakeAdapter("phantom"))

		_, err := s.Connect(ctx, "solflare")

		assert.ErrorIs(t, err, ErrWalletNotFound)
		_, connected := s.Identity()
		assert.False(t, connected)
	})

	t.Run("adapter not ready", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		a.ready = false
		s, _ := newTestSession(t, a)

		_, err := s.Connect(ctx, "phantom")

		assert.ErrorIs(t, err, ErrWalletNotReady)
		assert.Equal(t, 0, a.connects)
	})

	t.Run("adapter error", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		a.connectErr = ErrRejected
		s, _ := newTestSession(t, a)

		_, err := s.Connect(ctx, "phantom")

		assert.ErrorIs(t, err, ErrRejected)
		_, connected := s.Identity()
		assert.False(t, connected)
	})

	t.Run("success notifies subscribers", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		s, _ := newTestSession(t, a)
		rec := &recorder{}
		s.Subscribe(rec.record)

		identity, err := s.Connect(ctx, "phantom")

		require.NoError(t, err)
		assert.Equal(t, a.key.PublicKey(), identity)
		got, connected := s.Identity()
		assert.True(t, connected)
		assert.Equal(t, identity, got)
		require.Len(t, rec.events, 1)
		assert.Equal(t, EventConnected, rec.events[0].Kind)
		assert.Equal(t, identity, rec.events[0].Identity)
		assert.Equal(t, devnet, rec.events[0].Endpoint)
	})

	t.Run("reconnecting same adapter is a no-op", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		s, _ := newTestSession(t, a)
		rec := &recorder{}
		s.Subscribe(rec.record)

		_, err := s.Connect(ctx, "phantom")
		require.NoError(t, err)
		_, err = s.Connect(ctx, "phantom")
		require.NoError(t, err)

		assert.Equal(t, 1, a.connects)
		assert.Equal(t, []EventKind{EventConnected}, rec.kinds())
	})

	t.Run("switching adapters disconnects the first", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		b := newFakeAdapter("solflare")
		s, _ := newTestSession(t, a, b)
		rec := &recorder{}
		s.Subscribe(rec.record)

		_, err := s.Connect(ctx, "phantom")
		require.NoError(t, err)
		identity, err := s.Connect(ctx, "solflare")
		require.NoError(t, err)

		assert.Equal(t, b.key.PublicKey(), identity)
		assert.Equal(t, 1, a.disconnects)
		assert.Equal(t, []EventKind{EventConnected, EventDisconnected, EventConnected}, rec.kinds())
	})
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("phantom")
	s, _ := newTestSession(t, a)
	rec := &recorder{}
	s.Subscribe(rec.record)

	require.NoError(t, s.Disconnect(ctx), "disconnecting an idle session is a no-op")
	assert.Empty(t, rec.kinds())

	_, err := s.Connect(ctx, "phantom")
	require.NoError(t, err)
	require.NoError(t, s.Disconnect(ctx))

	identity, connected := s.Identity()
	assert.False(t, connected)
	assert.True(t, identity.IsZero())
	assert.Equal(t, []EventKind{EventConnected, EventDisconnected}, rec.kinds())
	assert.Equal(t, 1, a.disconnects)
}

func TestStart_AutoConnect(t *testing.T) {
	ctx := context.Background()

	manual := newFakeAdapter("manual")
	notReady := newFakeAdapter("missing")
	notReady.auto = true
	notReady.ready = false
	auto := newFakeAdapter("auto")
	auto.auto = true

	s, _ := newTestSession(t, manual, notReady, auto)
	s.Start(ctx)

	identity, connected := s.Identity()
	require.True(t, connected)
	assert.Equal(t, auto.key.PublicKey(), identity)
	assert.Equal(t, 0, manual.connects)
	assert.Equal(t, 0, notReady.connects)

	infos := s.Adapters()
	require.Len(t, infos, 3)
	assert.Equal(t, "manual", infos[0].Name)
	assert.False(t, infos[0].Active)
	assert.True(t, infos[2].Active)
}

func TestStart_NothingToConnect(t *testing.T) {
	s, _ := newTestSession(t, newFakeAdapter("manual"))
	s.Start(context.Background())

	_, connected := s.Identity()
	assert.False(t, connected)
}

func TestSwitchEndpoint(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("phantom")
	s, _ := newTestSession(t, a)
	_, err := s.Connect(ctx, "phantom")
	require.NoError(t, err)

	rec := &recorder{}
	unsubscribe := s.Subscribe(rec.record)

	testnet := Endpoint{Cluster: "testnet", RPCURL: "http://testnet.test"}
	require.NoError(t, s.SwitchEndpoint(ctx, testnet))

	assert.Equal(t, testnet, s.Endpoint())
	assert.Equal(t, "testnet", s.Network().Endpoint())
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventEndpointChanged, rec.events[0].Kind)
	assert.True(t, rec.events[0].Connected)
	assert.Equal(t, a.key.PublicKey(), rec.events[0].Identity)

	// Same endpoint again does nothing.
	require.NoError(t, s.SwitchEndpoint(ctx, testnet))
	assert.Len(t, rec.events, 1)

	unsubscribe()
	require.NoError(t, s.SwitchEndpoint(ctx, devnet))
	assert.Len(t, rec.events, 1, "unsubscribed listener must not be called")

	assert.Error(t, s.SwitchEndpoint(ctx, Endpoint{Cluster: "devnet"}))
}

func newTransferTx(t *testing.T, payer, extra solanago.PublicKey) *solanago.Transaction {
	t.Helper()
	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{solanago.NewInstruction(solanago.SystemProgramID, solanago.AccountMetaSlice{
			solanago.Meta(payer).WRITE().SIGNER(),
			solanago.Meta(extra).WRITE().SIGNER(),
		}, []byte{0})},
		solanago.Hash{9},
		solanago.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return tx
}

func TestSendTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("not connected makes no network call", func(t *testing.T) {
		s, network := newTestSession(t, newFakeAdapter("phantom"))
		extra := solanago.NewWallet().PrivateKey

		_, err := s.SendTransaction(ctx, newTransferTx(t, extra.PublicKey(), extra.PublicKey()), extra)

		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, 0, network.mock(devnet.RPCURL).TotalCalls())
	})

	t.Run("wallet and extra signer both sign", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		s, network := newTestSession(t, a)
		identity, err := s.Connect(ctx, "phantom")
		require.NoError(t, err)
		extra := solanago.NewWallet().PrivateKey

		tx := newTransferTx(t, identity, extra.PublicKey())
		sig, err := s.SendTransaction(ctx, tx, extra)

		require.NoError(t, err)
		assert.Equal(t, tx.Signatures[0], sig)
		require.NoError(t, tx.VerifySignatures())
		assert.Len(t, network.mock(devnet.RPCURL).SentTransactions(), 1)
	})

	t.Run("rejected signature is not broadcast", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		a.rejectSign = true
		s, network := newTestSession(t, a)
		identity, err := s.Connect(ctx, "phantom")
		require.NoError(t, err)
		extra := solanago.NewWallet().PrivateKey

		_, err = s.SendTransaction(ctx, newTransferTx(t, identity, extra.PublicKey()), extra)

		assert.ErrorIs(t, err, ErrRejected)
		assert.Empty(t, network.mock(devnet.RPCURL).SentTransactions())
	})

	t.Run("missing co-signer is not broadcast", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		s, network := newTestSession(t, a)
		identity, err := s.Connect(ctx, "phantom")
		require.NoError(t, err)

		_, err = s.SendTransaction(ctx, newTransferTx(t, identity, solanago.NewWallet().PublicKey()))

		assert.ErrorContains(t, err, "missing signature")
		assert.Empty(t, network.mock(devnet.RPCURL).SentTransactions())
	})

	t.Run("broadcast error is returned", func(t *testing.T) {
		a := newFakeAdapter("phantom")
		s, network := newTestSession(t, a)
		identity, err := s.Connect(ctx, "phantom")
		require.NoError(t, err)
		network.mock(devnet.RPCURL).SetMethodError("SendTransaction", errors.New("blockhash not found"))
		extra := solanago.NewWallet().PrivateKey

		_, err = s.SendTransaction(ctx, newTransferTx(t, identity, extra.PublicKey()), extra)

		assert.ErrorContains(t, err, "blockhash not found")
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("phantom")
	s, _ := newTestSession(t, a)
	_, err := s.Connect(ctx, "phantom")
	require.NoError(t, err)

	rec := &recorder{}
	s.Subscribe(rec.record)
	require.NoError(t, s.Close(ctx))

	_, connected := s.Identity()
	assert.False(t, connected)
	assert.Equal(t, []EventKind{EventDisconnected}, rec.kinds())

	require.NoError(t, s.SwitchEndpoint(ctx, Endpoint{Cluster: "testnet", RPCURL: "http://testnet.test"}))
	assert.Len(t, rec.kinds(), 1, "closed session has no subscribers")
}

func TestSession_EventsFollowStateOrder(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("phantom")
	s, _ := newTestSession(t, a)

	reached := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s.Subscribe(func(ev Event) {
		if ev.Kind == EventConnected {
			once.Do(func() { close(reached) })
			<-release
		}
	})
	rec := &recorder{}
	s.Subscribe(rec.record)

	connectDone := make(chan error, 1)
	go func() {
		_, err := s.Connect(ctx, "phantom")
		connectDone <- err
	}()
	<-reached

	disconnectDone := make(chan error, 1)
	go func() { disconnectDone <- s.Disconnect(ctx) }()

	select {
	case <-disconnectDone:
		t.Fatal("disconnect finished while the connect event was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-connectDone)
	require.NoError(t, <-disconnectDone)

	_, connected := s.Identity()
	assert.False(t, connected)
	assert.Equal(t, []EventKind{EventConnected, EventDisconnected}, rec.kinds())
	last := rec.events[len(rec.events)-1]
	assert.False(t, last.Connected)
}

func TestSession_ConcurrentOperations(t *testing.T) {
	ctx := context.Background()
	a := newFakeAdapter("phantom")
	b := newFakeAdapter("solflare")
	s, _ := newTestSession(t, a, b)
	rec := &recorder{}
	s.Subscribe(rec.record)

	testnet := Endpoint{Cluster: "testnet", RPCURL: "http://testnet.test"}
	ops := []func(){
		func() { _, _ = s.Connect(ctx, "phantom") },
		func() { _, _ = s.Connect(ctx, "solflare") },
		func() { _ = s.Disconnect(ctx) },
		func() { _ = s.SwitchEndpoint(ctx, devnet) },
		func() { _ = s.SwitchEndpoint(ctx, testnet) },
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ops[(g*7+i)%len(ops)]()
			}
		}(g)
	}
	wg.Wait()

	rec.mu.Lock()
	events := append([]Event(nil), rec.events...)
	rec.mu.Unlock()
	require.NotEmpty(t, events)

	// Replaying the events must reproduce a valid sequence of state changes.
	replayed := false
	for i, ev := range events {
		switch ev.Kind {
		case EventConnected:
			assert.False(t, replayed, "event %d: connected while already connected", i)
			replayed = true
		case EventDisconnected:
			assert.True(t, replayed, "event %d: disconnected while idle", i)
			replayed = false
		case EventEndpointChanged:
			assert.Equal(t, replayed, ev.Connected, "event %d: endpoint change reports stale connection", i)
		}
	}

	identity, connected := s.Identity()
	last := events[len(events)-1]
	assert.Equal(t, connected, replayed)
	assert.Equal(t, connected, last.Connected)
	assert.Equal(t, s.Endpoint(), last.Endpoint)
	if connected {
		assert.Equal(t, identity, last.Identity)
	}

	live := 0
	for _, f := range []*fakeAdapter{a, b} {
		f.mu.Lock()
		n := f.connects - f.disconnects
		f.mu.Unlock()
		assert.Contains(t, []int{0, 1}, n, "adapter %s", f.name)
		live += n
	}
	if connected {
		assert.Equal(t, 1, live)
	} else {
		assert.Equal(t, 0, live)
	}
}

func TestKeygenFileAdapter(t *testing.T) {
	ctx := context.Background()
	key := solanago.NewWallet().PrivateKey
	path := filepath.Join(t.TempDir(), "id.json")

	missing := NewKeygenFileAdapter(path)
	assert.False(t, missing.Ready())
	assert.True(t, missing.AutoConnectable())
	assert.False(t, NewKeygenFileAdapter("").Ready())

	require.NoError(t, WriteKeygenFile(path, key))

	a := NewKeygenFileAdapter(path)
	require.True(t, a.Ready())
	identity, err := a.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), identity)

	tx := newTransferTx(t, identity, identity)
	require.NoError(t, a.SignTransaction(ctx, tx))
	require.NoError(t, tx.VerifySignatures())

	require.NoError(t, a.Disconnect(ctx))
	assert.Error(t, a.SignTransaction(ctx, newTransferTx(t, identity, identity)), "locked after disconnect")
}

func TestKeyAdapter_RefusesForeignTransaction(t *testing.T) {
	ctx := context.Background()
	a := NewMnemonicAdapter(testMnemonic, "")
	_, err := a.Connect(ctx)
	require.NoError(t, err)

	other := solanago.NewWallet().PublicKey()
	err = a.SignTransaction(ctx, newTransferTx(t, other, other))

	assert.ErrorIs(t, err, ErrRejected)
}

func TestMnemonicAdapter(t *testing.T) {
	ctx := context.Background()

	assert.False(t, NewMnemonicAdapter("", "").Ready())
	assert.False(t, NewMnemonicAdapter("not a real mnemonic", "").Ready())

	a := NewMnemonicAdapter(testMnemonic, "")
	require.True(t, a.Ready())
	assert.False(t, a.AutoConnectable())

	identity, err := a.Connect(ctx)
	require.NoError(t, err)

	again, err := NewMnemonicAdapter(testMnemonic, "").Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, identity, again, "derivation is deterministic")

	salted, err := NewMnemonicAdapter(testMnemonic, "TREZOR").Connect(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, identity, salted, "passphrase changes the key")
}
