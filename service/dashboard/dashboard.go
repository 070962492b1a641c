package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/solwallet/service/account"
	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/notify"
	"github.com/brojonat/solwallet/service/solana"
	"github.com/brojonat/solwallet/service/wallet"
	solanago "github.com/gagliardetto/solana-go"
)

// ErrCreateInFlight is returned when a token creation is requested while one is running.
var ErrCreateInFlight = errors.New("token creation already in progress")

// User-facing notification texts.
const (
	MsgWalletNotConnected = "Wallet not connected!"
	MsgAddressCopied      = "Wallet address copied!"
	MsgTokenCreated       = "Token created successfully! Mint: %s"
	MsgTokenFailed        = "Token creation failed!"
	MsgWalletNotReady     = "No compatible wallet found for %s"
)

// Session is the wallet session the dashboard drives.
type Session interface {
	Adapters() []wallet.AdapterInfo
	Connect(ctx context.Context, name string) (solanago.PublicKey, error)
	Disconnect(ctx context.Context) error
	Identity() (solanago.PublicKey, bool)
	Endpoint() wallet.Endpoint
	SwitchEndpoint(ctx context.Context, endpoint wallet.Endpoint) error
	Subscribe(fn func(wallet.Event)) func()
}

// Options holds the dashboard's collaborators.
type Options struct {
	Session         Session
	Fetcher         *account.Fetcher
	Minter          mint.Executor
	Notifier        notify.Notifier // optional, receives every notification in addition to Feed
	Feed            *notify.Feed    // optional, source of State.Notifications
	ExplorerURL     string
	CopyAckDuration time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Metrics // optional
}

// Dashboard holds the presentation state for the connected account. Every fetch is tagged
// with the generation current when it started; a result whose generation no longer matches
// when it arrives belongs to a previous account or endpoint and is dropped.
type Dashboard struct {
	session     Session
	fetcher     *account.Fetcher
	minter      mint.Executor
	notifier    notify.Notifier
	feed        *notify.Feed
	explorerURL string
	copyAck     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()

	mu                  sync.Mutex
	generation          uint64 // bumped on every identity or endpoint change
	fetchSeq            uint64 // bumped on every fetch; only the latest fetch may apply
	identity            solanago.PublicKey
	connected           bool
	endpoint            wallet.Endpoint
	balance             *account.Balance
	balanceLoading      bool
	balanceUnavailable  bool
	transactions        []*solana.TransactionSummary
	transactionsLoading bool
	tokenBalance        *solana.TokenBalance
	lastMint            *mint.Result
	creating            bool
	copied              bool
	copyTimer           *time.Timer
}

// New creates a dashboard, subscribes it to the session and, if a wallet is already
// connected, starts the initial fetch.
func New(opts Options) (*Dashboard, error) {
	if opts.Session == nil || opts.Fetcher == nil || opts.Minter == nil {
		return nil, fmt.Errorf("session, fetcher and minter are required")
	}
	var notifiers notify.Multi
	if opts.Feed != nil {
		notifiers = append(notifiers, opts.Feed)
	}
	if opts.Notifier != nil {
		notifiers = append(notifiers, opts.Notifier)
	}
	if opts.CopyAckDuration <= 0 {
		opts.CopyAckDuration = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		session:     opts.Session,
		fetcher:     opts.Fetcher,
		minter:      opts.Minter,
		notifier:    notifiers,
		feed:        opts.Feed,
		explorerURL: opts.ExplorerURL,
		copyAck:     opts.CopyAckDuration,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		ctx:         ctx,
		cancel:      cancel,
		endpoint:    opts.Session.Endpoint(),
	}

	d.unsubscribe = d.session.Subscribe(d.handleEvent)

	if identity, ok := d.session.Identity(); ok {
		d.handleEvent(wallet.Event{
			Kind:      wallet.EventConnected,
			Identity:  identity,
			Connected: true,
			Endpoint:  d.session.Endpoint(),
		})
	}

	return d, nil
}

// handleEvent re-evaluates the (identity, endpoint) pair and starts a fetch when it changed.
func (d *Dashboard) handleEvent(ev wallet.Event) {
	d.mu.Lock()

	if !ev.Connected {
		d.generation++
		d.connected = false
		d.identity = solanago.PublicKey{}
		d.endpoint = ev.Endpoint
		d.clearAccountLocked()
		d.mu.Unlock()
		return
	}

	if d.connected && d.identity.Equals(ev.Identity) && d.endpoint == ev.Endpoint {
		d.mu.Unlock()
		return
	}

	d.generation++
	d.connected = true
	d.identity = ev.Identity
	d.endpoint = ev.Endpoint
	d.clearAccountLocked()
	gen, seq, identity := d.beginFetchLocked()
	d.mu.Unlock()

	d.fetch(gen, seq, identity)
}

// clearAccountLocked drops everything that belongs to the previous account or endpoint.
func (d *Dashboard) clearAccountLocked() {
	d.balance = nil
	d.balanceLoading = false
	d.balanceUnavailable = false
	d.transactions = nil
	d.transactionsLoading = false
	d.tokenBalance = nil
	d.lastMint = nil
	d.copied = false
	if d.copyTimer != nil {
		d.copyTimer.Stop()
		d.copyTimer = nil
	}
}

func (d *Dashboard) beginFetchLocked() (uint64, uint64, solanago.PublicKey) {
	d.fetchSeq++
	d.balanceLoading = true
	d.transactionsLoading = true
	return d.generation, d.fetchSeq, d.identity
}

func (d *Dashboard) staleLocked(gen, seq uint64) bool {
	return gen != d.generation || seq != d.fetchSeq
}

// fetch loads balance and history independently so one failing keeps the other.
func (d *Dashboard) fetch(gen, seq uint64, identity solanago.PublicKey) {
	d.wg.Go(func() {
		balance, err := d.fetcher.Balance(d.ctx, identity)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.staleLocked(gen, seq) {
			d.discard("balance", identity)
			return
		}
		d.balanceLoading = false
		if err != nil {
			d.logger.ErrorContext(d.ctx, "error fetching balance",
				"account", identity.String(),
				"error", err,
			)
			if d.balance == nil {
				d.balanceUnavailable = true
			}
			return
		}
		d.balance = balance
		d.balanceUnavailable = false
	})

	d.wg.Go(func() {
		txns, err := d.fetcher.History(d.ctx, identity)

		d.mu.Lock()
		defer d.mu.Unlock()
		if d.staleLocked(gen, seq) {
			d.discard("transactions", identity)
			return
		}
		d.transactionsLoading = false
		if err != nil {
			d.logger.ErrorContext(d.ctx, "error fetching transactions",
				"account", identity.String(),
				"error", err,
			)
			return
		}
		d.transactions = txns
	})
}

func (d *Dashboard) discard(kind string, identity solanago.PublicKey) {
	d.logger.DebugContext(d.ctx, "discarding stale result",
		"kind", kind,
		"account", identity.String(),
	)
	if d.metrics != nil {
		d.metrics.RecordStaleDiscard(kind)
	}
}

// Adapters lists the available wallet adapters.
func (d *Dashboard) Adapters() []wallet.AdapterInfo {
	return d.session.Adapters()
}

// Connect connects the named wallet adapter.
func (d *Dashboard) Connect(ctx context.Context, name string) (solanago.PublicKey, error) {
	identity, err := d.session.Connect(ctx, name)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotReady) || errors.Is(err, wallet.ErrWalletNotFound) {
			d.notify(ctx, notify.Error(fmt.Sprintf(MsgWalletNotReady, name), ""))
		}
		return solanago.PublicKey{}, err
	}
	return identity, nil
}

// Disconnect ends the wallet session. Account data is cleared by the resulting event.
func (d *Dashboard) Disconnect(ctx context.Context) error {
	return d.session.Disconnect(ctx)
}

// SwitchEndpoint changes the network endpoint; the account is re-fetched from it.
func (d *Dashboard) SwitchEndpoint(ctx context.Context, endpoint wallet.Endpoint) error {
	return d.session.SwitchEndpoint(ctx, endpoint)
}

// Refresh re-fetches balance and history for the connected account.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return wallet.ErrNotConnected
	}
	gen, seq, identity := d.beginFetchLocked()
	d.mu.Unlock()

	d.fetch(gen, seq, identity)
	return nil
}

// CopyAddress returns the full account address and raises the copied flag for the
// acknowledgment period.
func (d *Dashboard) CopyAddress(ctx context.Context) (string, error) {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		d.notify(ctx, notify.Error(MsgWalletNotConnected, ""))
		return "", wallet.ErrNotConnected
	}
	address := d.identity.String()
	gen := d.generation
	d.copied = true
	if d.copyTimer != nil {
		d.copyTimer.Stop()
	}
	d.copyTimer = time.AfterFunc(d.copyAck, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.generation == gen {
			d.copied = false
		}
	})
	d.mu.Unlock()

	d.notify(ctx, notify.Success(MsgAddressCopied, address))
	return address, nil
}

// CreateToken runs the mint workflow for the connected account. Only one creation may run
// at a time. The token balance is fetched afterwards in the background.
func (d *Dashboard) CreateToken(ctx context.Context) (*mint.Result, error) {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		d.notify(ctx, notify.Error(MsgWalletNotConnected, ""))
		return nil, mint.ErrWalletNotConnected
	}
	if d.creating {
		d.mu.Unlock()
		return nil, ErrCreateInFlight
	}
	d.creating = true
	gen := d.generation
	account := d.identity.String()
	d.mu.Unlock()

	res, err := d.minter.CreateToken(ctx)

	d.mu.Lock()
	d.creating = false
	if err == nil && gen == d.generation {
		d.lastMint = res
	}
	d.mu.Unlock()

	if errors.Is(err, mint.ErrWalletNotConnected) {
		d.notify(ctx, notify.Error(MsgWalletNotConnected, ""))
		return nil, err
	}
	if err != nil {
		d.logger.ErrorContext(ctx, "error creating token",
			"account", account,
			"error", err,
		)
		d.notify(ctx, notify.Error(MsgTokenFailed, account))
		return nil, err
	}

	d.notify(ctx, notify.Success(fmt.Sprintf(MsgTokenCreated, res.Mint), account))

	d.wg.Go(func() {
		balance, err := d.minter.TokenBalance(d.ctx, res)

		d.mu.Lock()
		defer d.mu.Unlock()
		if gen != d.generation {
			d.discard("token_balance", res.Owner)
			return
		}
		if err != nil {
			d.logger.ErrorContext(d.ctx, "error fetching token balance",
				"account", res.Owner.String(),
				"mint", res.Mint.String(),
				"error", err,
			)
			return
		}
		d.tokenBalance = balance
	})

	return res, nil
}

// State returns a copy of the current view state.
func (d *Dashboard) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := State{
		Connected:           d.connected,
		Cluster:             d.endpoint.Cluster,
		RPCURL:              d.endpoint.RPCURL,
		BalanceLoading:      d.balanceLoading,
		BalanceUnavailable:  d.balanceUnavailable,
		TransactionsLoading: d.transactionsLoading,
		Creating:            d.creating,
		Copied:              d.copied,
		Transactions:        make([]TransactionRow, 0, len(d.transactions)),
		Notifications:       []notify.Notification{},
	}
	if d.connected {
		s.Account = d.identity.String()
		s.ShortAccount = solana.ShortAddress(s.Account)
	}
	if d.balance != nil {
		b := *d.balance
		s.Balance = &b
	}
	if d.tokenBalance != nil {
		tb := *d.tokenBalance
		s.TokenBalance = &tb
	}
	if d.lastMint != nil {
		m := *d.lastMint
		s.LastMint = &m
	}
	for _, txn := range d.transactions {
		s.Transactions = append(s.Transactions, NewTransactionRow(txn, d.explorerURL, d.endpoint.Cluster))
	}
	if d.feed != nil {
		s.Notifications = d.feed.Recent(5)
	}
	return s
}

// Wait blocks until every background fetch has finished.
func (d *Dashboard) Wait() {
	d.wg.Wait()
}

// Close stops listening to the session, cancels in-flight fetches and waits for them.
func (d *Dashboard) Close() {
	d.unsubscribe()
	d.cancel()
	d.wg.Wait()

	d.mu.Lock()
	if d.copyTimer != nil {
		d.copyTimer.Stop()
	}
	d.mu.Unlock()
}

func (d *Dashboard) notify(ctx context.Context, n notify.Notification) {
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.logger.WarnContext(ctx, "failed to deliver notification",
			"level", n.Level,
			"error", err,
		)
	}
}
