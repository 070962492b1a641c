package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var (
	// ErrTransactionFailed is returned when the network reports an execution error for a submitted transaction.
	ErrTransactionFailed = errors.New("transaction failed on chain")

	// ErrConfirmationTimeout is returned when a submitted transaction is not confirmed in time.
	ErrConfirmationTimeout = errors.New("timed out waiting for transaction confirmation")
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetBalanceResult, error)

	GetSignaturesForAddress(
		ctx context.Context,
		address solana.PublicKey,
		opts *rpc.GetSignaturesForAddressOpts,
	) ([]*rpc.TransactionSignature, error)

	GetTransaction(
		ctx context.Context,
		signature solana.Signature,
		opts *rpc.GetTransactionOpts,
	) (*rpc.GetTransactionResult, error)

	GetMinimumBalanceForRentExemption(
		ctx context.Context,
		dataSize uint64,
		commitment rpc.CommitmentType,
	) (uint64, error)

	GetLatestBlockhash(
		ctx context.Context,
		commitment rpc.CommitmentType,
	) (*rpc.GetLatestBlockhashResult, error)

	GetTokenAccountBalance(
		ctx context.Context,
		account solana.PublicKey,
		commitment rpc.CommitmentType,
	) (*rpc.GetTokenAccountBalanceResult, error)

	SendTransaction(
		ctx context.Context,
		tx *solana.Transaction,
	) (solana.Signature, error)

	GetSignatureStatuses(
		ctx context.Context,
		searchTransactionHistory bool,
		signatures ...solana.Signature,
	) (*rpc.GetSignatureStatusesResult, error)
}

// Provider yields the client for the currently selected endpoint.
type Provider interface {
	Network() *Client
}

type staticProvider struct {
	client *Client
}

func (p staticProvider) Network() *Client { return p.client }

// Static returns a Provider that always yields c.
func Static(c *Client) Provider {
	return staticProvider{client: c}
}

// Client provides the network operations used by the dashboard.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics (e.g., "devnet" or rpc host)

	// confirmPollInterval is how often AwaitConfirmation polls signature status.
	confirmPollInterval time.Duration
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:                 rpcClient,
		logger:              logger,
		metrics:             m,
		endpoint:            endpoint,
		confirmPollInterval: time.Second,
	}
}

// WithConfirmPollInterval overrides the signature status polling interval.
func (c *Client) WithConfirmPollInterval(d time.Duration) *Client {
	c.confirmPollInterval = d
	return c
}

// Endpoint returns the endpoint label this client was created with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// observe records metrics for a single RPC call.
func (c *Client) observe(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}

// Balance returns the lamport balance of an account at confirmed commitment.
func (c *Client) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, account, rpc.CommitmentConfirmed)
	c.observe("GetBalance", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", account, err)
	}
	if out == nil {
		return 0, fmt.Errorf("empty balance response for %s", account)
	}
	return out.Value, nil
}

// RecentSignatures lists up to limit signatures for an address, most recent first.
func (c *Client) RecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	}

	c.logger.DebugContext(ctx, "calling GetSignaturesForAddress",
		"wallet", address.String(),
		"limit", limit,
	)

	start := time.Now()
	signatures, err := c.rpc.GetSignaturesForAddress(ctx, address, opts)
	c.observe("GetSignaturesForAddress", start, err)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to get signatures",
			"wallet", address.String(),
			"error", err,
		)
		return nil, fmt.Errorf("failed to list signatures for %s: %w", address, err)
	}

	// Some RPC providers ignore the limit; never hand back more than asked for.
	if len(signatures) > limit {
		signatures = signatures[:limit]
	}

	c.logger.DebugContext(ctx, "fetched transaction signatures",
		"wallet", address.String(),
		"count", len(signatures),
	)

	return signatures, nil
}

// TransactionSummary fetches the full transaction for a listed signature and projects it.
// A transaction the node no longer has is summarized from the listing alone.
func (c *Client) TransactionSummary(ctx context.Context, sig *rpc.TransactionSignature) (*TransactionSummary, error) {
	// Fetch full transaction details with support for versioned transactions
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &[]uint64{0}[0],
	}

	start := time.Now()
	result, err := c.rpc.GetTransaction(ctx, sig.Signature, opts)
	c.observe("GetTransaction", start, err)
	if errors.Is(err, rpc.ErrNotFound) {
		c.logger.DebugContext(ctx, "transaction details not available, using listing metadata",
			"signature", sig.Signature.String(),
		)
		return signatureToSummary(sig), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", sig.Signature, err)
	}

	return summaryFromResult(sig, result), nil
}

// RentExemptBalance returns the minimum lamports for an account of dataSize bytes to be rent exempt.
func (c *Client) RentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error) {
	start := time.Now()
	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentConfirmed)
	c.observe("GetMinimumBalanceForRentExemption", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption for %d bytes: %w", dataSize, err)
	}
	return lamports, nil
}

// LatestBlockhash returns a recent blockhash for building transactions.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.observe("GetLatestBlockhash", start, err)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("empty blockhash response")
	}
	return out.Value.Blockhash, nil
}

// TokenBalance returns the balance of an SPL token account.
func (c *Client) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (*TokenBalance, error) {
	start := time.Now()
	out, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentConfirmed)
	c.observe("GetTokenAccountBalance", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance for %s: %w", tokenAccount, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("empty token balance response for %s", tokenAccount)
	}

	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid token amount %q: %w", out.Value.Amount, err)
	}

	return &TokenBalance{
		Account:  tokenAccount.String(),
		Amount:   amount,
		Decimals: out.Value.Decimals,
	}, nil
}

// SendTransaction broadcasts a fully signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransaction(ctx, tx)
	c.observe("SendTransaction", start, err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// AwaitConfirmation polls the signature status until it reaches confirmed commitment,
// the transaction fails, or timeout elapses.
func (c *Client) AwaitConfirmation(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.confirmPollInterval)
	defer ticker.Stop()

	for {
		start := time.Now()
		out, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		c.observe("GetSignatureStatuses", start, err)
		if err != nil {
			c.logger.WarnContext(ctx, "failed to get signature status",
				"signature", sig.String(),
				"error", err,
			)
		} else if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				c.logger.DebugContext(ctx, "transaction confirmed",
					"signature", sig.String(),
					"status", status.ConfirmationStatus,
				)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
