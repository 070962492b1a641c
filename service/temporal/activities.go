package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Application error types surfaced by the activities.
const (
	ErrTypeWalletNotConnected = "WalletNotConnected"
	ErrTypeOwnerMismatch      = "OwnerMismatch"
)

// CreateTokenInput contains the input parameters for the token creation workflow.
type CreateTokenInput struct {
	Owner string `json:"owner"` // identity the request was made for
}

// CreateTokenResult contains the result of the token creation workflow.
type CreateTokenResult struct {
	Mint              string               `json:"mint"`
	Signature         string               `json:"signature"`
	Owner             string               `json:"owner"`
	TokenBalance      *solana.TokenBalance `json:"token_balance,omitempty"`
	TokenBalanceError string               `json:"token_balance_error,omitempty"`
}

// SubmitMintAccountResult contains the result of the SubmitMintAccount activity.
type SubmitMintAccountResult struct {
	Mint      string `json:"mint"`
	Signature string `json:"signature"`
	Owner     string `json:"owner"`
}

// FetchTokenBalanceInput contains parameters for the FetchTokenBalance activity.
type FetchTokenBalanceInput struct {
	Owner string `json:"owner"`
	Mint  string `json:"mint"`
}

// Minter defines the token operations needed by activities.
// This allows for easy mocking in tests.
type Minter interface {
	Owner() (solanago.PublicKey, bool)
	Submit(ctx context.Context) (*mint.Result, error)
	FetchTokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	minter  Minter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(minter Minter, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		minter:  minter,
		metrics: m,
		logger:  logger,
	}
}

// SubmitMintAccount creates, signs, broadcasts and confirms a new mint account.
// The transaction is never resubmitted: every failure is non-retryable.
func (a *Activities) SubmitMintAccount(ctx context.Context, input CreateTokenInput) (*SubmitMintAccountResult, error) {
	start := time.Now()

	owner, ok := a.minter.Owner()
	if !ok {
		a.recordCreation("not_connected")
		return nil, temporalsdk.NewNonRetryableApplicationError(
			"wallet not connected", ErrTypeWalletNotConnected, mint.ErrWalletNotConnected)
	}
	if input.Owner != "" && owner.String() != input.Owner {
		a.recordCreation("failed")
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("connected wallet %s does not match requested owner %s", owner, input.Owner),
			ErrTypeOwnerMismatch, nil)
	}

	a.logger.DebugContext(ctx, "submitting mint account", "owner", owner.String())

	res, err := a.minter.Submit(ctx)
	if err != nil {
		if errors.Is(err, mint.ErrWalletNotConnected) {
			a.recordCreation("not_connected")
			return nil, temporalsdk.NewNonRetryableApplicationError(
				"wallet not connected", ErrTypeWalletNotConnected, err)
		}
		a.recordCreation("failed")
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("failed to submit mint account: %v", err), "SubmitFailed", err)
	}

	a.recordCreation("success")
	a.logger.InfoContext(ctx, "mint account confirmed",
		"owner", res.Owner.String(),
		"mint", res.Mint.String(),
		"signature", res.Signature.String(),
		"duration", time.Since(start),
	)

	return &SubmitMintAccountResult{
		Mint:      res.Mint.String(),
		Signature: res.Signature.String(),
		Owner:     res.Owner.String(),
	}, nil
}

// FetchTokenBalance reads the owner's balance of the new mint.
func (a *Activities) FetchTokenBalance(ctx context.Context, input FetchTokenBalanceInput) (*solana.TokenBalance, error) {
	owner, err := solanago.PublicKeyFromBase58(input.Owner)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid owner address: %v", err), "InvalidAddress", err)
	}
	mintKey, err := solanago.PublicKeyFromBase58(input.Mint)
	if err != nil {
		return nil, temporalsdk.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid mint address: %v", err), "InvalidAddress", err)
	}

	balance, err := a.minter.FetchTokenBalance(ctx, owner, mintKey)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to fetch token balance",
			"owner", input.Owner,
			"mint", input.Mint,
			"error", err,
		)
		return nil, err
	}
	return balance, nil
}

func (a *Activities) recordCreation(status string) {
	if a.metrics != nil {
		a.metrics.RecordMintCreation(status)
	}
}
