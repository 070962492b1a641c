package account

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testSignature(i int) solanago.Signature {
	var sig solanago.Signature
	sig[0] = byte(i)
	sig[1] = byte(i >> 8)
	sig[63] = 0xCD
	return sig
}

// seedHistory lists n transactions for account, newest first, each with full details.
func seedHistory(mock *solana.MockRPCClient, account solanago.PublicKey, n int) {
	var sigs []*rpc.TransactionSignature
	for i := 0; i < n; i++ {
		sig := testSignature(i)
		blockTime := solanago.UnixTimeSeconds(1_700_000_000 - int64(i*60))
		sigs = append(sigs, &rpc.TransactionSignature{Signature: sig, Slot: uint64(1000 - i), BlockTime: &blockTime})
		mock.SetTransaction(sig, &rpc.GetTransactionResult{
			Slot:      uint64(1000 - i),
			BlockTime: &blockTime,
			Meta:      &rpc.TransactionMeta{Fee: uint64(5000 + i)},
		})
	}
	mock.SetSignatures(account, sigs)
}

func newTestFetcher(mock *solana.MockRPCClient, concurrency int) *Fetcher {
	client := solana.NewClient(mock, "test", nil, testLogger)
	return NewFetcher(solana.Static(client), DefaultHistoryLimit, concurrency, nil, testLogger)
}

func TestBalance(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	mock.SetBalance(account, 2_500_000_000)

	balance, err := newTestFetcher(mock, 0).Balance(context.Background(), account)

	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000_000), balance.Lamports)
	assert.Equal(t, "2.5", balance.SOL)
}

func TestHistory_LimitAndOrder(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	seedHistory(mock, account, 15)

	fetcher := newTestFetcher(mock, 4)
	summaries, err := fetcher.History(context.Background(), account)

	require.NoError(t, err)
	require.Len(t, summaries, 10)
	for i, s := range summaries {
		assert.Equal(t, testSignature(i).String(), s.Signature, "position %d", i)
		require.NotNil(t, s.Fee)
		assert.Equal(t, uint64(5000+i), *s.Fee)
	}
	assert.Equal(t, 10, mock.Calls("GetTransaction"))
	assert.Equal(t, 10, fetcher.HistoryLimit())
}

func TestHistory_Empty(t *testing.T) {
	mock := solana.NewMockRPCClient()

	summaries, err := newTestFetcher(mock, 0).History(context.Background(), solanago.NewWallet().PublicKey())

	require.NoError(t, err)
	assert.Empty(t, summaries)
	assert.Equal(t, 0, mock.Calls("GetTransaction"))
}

func TestHistory_OneFailedDetailFailsBatch(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	seedHistory(mock, account, 5)
	mock.SetKeyError(testSignature(3).String(), errors.New("429 too many requests"))

	summaries, err := newTestFetcher(mock, 0).History(context.Background(), account)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Nil(t, summaries, "partial batches are never returned")
}

func TestHistory_FailedBatchLogsEndpoint(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	seedHistory(mock, account, 2)
	mock.SetKeyError(testSignature(1).String(), errors.New("429 too many requests"))

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	client := solana.NewClient(mock, "devnet", nil, logger)
	fetcher := NewFetcher(solana.Static(client), 2, 0, nil, logger)
	assert.Equal(t, 2, fetcher.HistoryLimit())

	_, err := fetcher.History(context.Background(), account)

	require.Error(t, err)
	assert.Contains(t, buf.String(), "transaction detail batch failed")
	assert.Contains(t, buf.String(), "endpoint=devnet")
}

func TestHistory_PrunedDetailUsesListing(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	sig := testSignature(1)
	mock.SetSignatures(account, []*rpc.TransactionSignature{{Signature: sig, Slot: 5}})

	summaries, err := newTestFetcher(mock, 0).History(context.Background(), account)

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Nil(t, summaries[0].Fee)
	assert.Equal(t, solana.NotAvailable, solana.FormatFee(summaries[0].Fee))
}

func TestHistory_BoundedConcurrency(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	seedHistory(mock, account, 10)

	var inFlight, peak atomic.Int32
	mock.SetHook("GetTransaction", func(ctx context.Context, key string) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
	})

	summaries, err := newTestFetcher(mock, 3).History(context.Background(), account)

	require.NoError(t, err)
	assert.Len(t, summaries, 10)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestHistory_Idempotent(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	seedHistory(mock, account, 7)
	fetcher := newTestFetcher(mock, 0)

	first, err := fetcher.History(context.Background(), account)
	require.NoError(t, err)
	second, err := fetcher.History(context.Background(), account)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestHistory_WithMetrics(t *testing.T) {
	mock := solana.NewMockRPCClient()
	account := solanago.NewWallet().PublicKey()
	seedHistory(mock, account, 2)

	m := metrics.NewMetrics(prometheus.NewRegistry())
	client := solana.NewClient(mock, "test", m, testLogger)
	fetcher := NewFetcher(solana.Static(client), 10, 2, m, testLogger)

	_, err := fetcher.History(context.Background(), account)
	require.NoError(t, err)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	account := solanago.NewWallet().PublicKey()

	t.Run("success", func(t *testing.T) {
		mock := solana.NewMockRPCClient()
		mock.SetBalance(account, 1_000_000_000)
		seedHistory(mock, account, 3)

		snap, err := newTestFetcher(mock, 0).Refresh(ctx, account)

		require.NoError(t, err)
		assert.Equal(t, account.String(), snap.Account)
		assert.Equal(t, "1", snap.Balance.SOL)
		assert.Len(t, snap.Transactions, 3)
		assert.False(t, snap.FetchedAt.IsZero())
	})

	t.Run("balance failure fails refresh", func(t *testing.T) {
		mock := solana.NewMockRPCClient()
		seedHistory(mock, account, 3)
		mock.SetMethodError("GetBalance", errors.New("connection refused"))

		snap, err := newTestFetcher(mock, 0).Refresh(ctx, account)

		require.Error(t, err)
		assert.Nil(t, snap)
	})
}
