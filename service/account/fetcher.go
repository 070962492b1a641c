package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultHistoryLimit is how many recent transactions are shown.
	DefaultHistoryLimit = 10

	// DefaultConcurrency bounds concurrent transaction detail requests.
	DefaultConcurrency = 10
)

// Balance is an account's native balance.
type Balance struct {
	Lamports uint64 `json:"lamports"`
	SOL      string `json:"sol"`
}

// Snapshot is everything the dashboard shows for one account at one point in time.
type Snapshot struct {
	Account      string                       `json:"account"`
	Balance      Balance                      `json:"balance"`
	Transactions []*solana.TransactionSummary `json:"transactions"`
	FetchedAt    time.Time                    `json:"fetched_at"`
}

// Fetcher reads balance and recent history for an account from the current endpoint.
type Fetcher struct {
	network      solana.Provider
	historyLimit int
	concurrency  int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewFetcher creates a fetcher. Non-positive limits fall back to the defaults.
func NewFetcher(network solana.Provider, historyLimit, concurrency int, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Fetcher{
		network:      network,
		historyLimit: historyLimit,
		concurrency:  concurrency,
		logger:       logger,
		metrics:      m,
	}
}

// HistoryLimit returns the maximum number of transactions a fetch returns.
func (f *Fetcher) HistoryLimit() int {
	return f.historyLimit
}

// Balance fetches the account balance and converts it for display.
func (f *Fetcher) Balance(ctx context.Context, account solanago.PublicKey) (*Balance, error) {
	lamports, err := f.network.Network().Balance(ctx, account)
	if err != nil {
		return nil, err
	}
	return &Balance{Lamports: lamports, SOL: solana.LamportsToSOL(lamports)}, nil
}

// History lists the most recent transactions, most recent first, and fetches their details
// concurrently. Any failed detail request fails the whole batch; partial results are never
// returned.
func (f *Fetcher) History(ctx context.Context, account solanago.PublicKey) ([]*solana.TransactionSummary, error) {
	start := time.Now()
	client := f.network.Network()

	summaries, err := f.history(ctx, client, account)

	status := "success"
	if err != nil {
		status = "error"
	}
	if f.metrics != nil {
		f.metrics.RecordRefresh(status, time.Since(start).Seconds(), len(summaries))
	}
	return summaries, err
}

func (f *Fetcher) history(ctx context.Context, client *solana.Client, account solanago.PublicKey) ([]*solana.TransactionSummary, error) {
	signatures, err := client.RecentSignatures(ctx, account, f.historyLimit)
	if err != nil {
		return nil, err
	}

	summaries := make([]*solana.TransactionSummary, len(signatures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, sig := range signatures {
		g.Go(func() error {
			summary, err := client.TransactionSummary(gctx, sig)
			if err != nil {
				return err
			}
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.logger.WarnContext(ctx, "transaction detail batch failed",
			"account", account.String(),
			"endpoint", client.Endpoint(),
			"signatures", len(signatures),
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch transaction details: %w", err)
	}

	return summaries, nil
}

// Refresh fetches balance and history together. Both must succeed.
func (f *Fetcher) Refresh(ctx context.Context, account solanago.PublicKey) (*Snapshot, error) {
	var (
		balance *Balance
		txns    []*solana.TransactionSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = f.Balance(gctx, account)
		return err
	})
	g.Go(func() error {
		var err error
		txns, err = f.History(gctx, account)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Snapshot{
		Account:      account.String(),
		Balance:      *balance,
		Transactions: txns,
		FetchedAt:    time.Now().UTC(),
	}, nil
}
