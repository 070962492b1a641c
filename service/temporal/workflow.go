package temporal

import (
	"fmt"
	"time"

	"github.com/brojonat/solwallet/service/solana"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// Activity timeouts. Submission covers signing, broadcast and confirmation polling.
const (
	SubmitTimeout       = 2 * time.Minute
	TokenBalanceTimeout = 30 * time.Second
)

// CreateTokenWorkflow creates an SPL token mint account for the connected wallet.
//
// The workflow performs these steps:
// 1. Create, sign, broadcast and confirm the mint account (SubmitMintAccount activity)
// 2. Read the owner's balance of the new mint (FetchTokenBalance activity)
//
// Neither step is retried. A failed balance read is recorded in the result and does not
// fail the workflow, since the mint already exists on chain.
func CreateTokenWorkflow(ctx workflow.Context, input CreateTokenInput) (*CreateTokenResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("CreateTokenWorkflow started", "owner", input.Owner)

	noRetry := &temporalsdk.RetryPolicy{MaximumAttempts: 1}

	submitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: SubmitTimeout,
		RetryPolicy:         noRetry,
	})

	var submitted *SubmitMintAccountResult
	err := workflow.ExecuteActivity(submitCtx, a.SubmitMintAccount, input).Get(submitCtx, &submitted)
	if err != nil {
		logger.Error("failed to submit mint account", "owner", input.Owner, "error", err)
		return nil, fmt.Errorf("failed to submit mint account: %w", err)
	}

	result := &CreateTokenResult{
		Mint:      submitted.Mint,
		Signature: submitted.Signature,
		Owner:     submitted.Owner,
	}

	balanceCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: TokenBalanceTimeout,
		RetryPolicy:         noRetry,
	})

	var balance *solana.TokenBalance
	err = workflow.ExecuteActivity(balanceCtx, a.FetchTokenBalance, FetchTokenBalanceInput{
		Owner: submitted.Owner,
		Mint:  submitted.Mint,
	}).Get(balanceCtx, &balance)
	if err != nil {
		logger.Warn("token balance unavailable", "mint", submitted.Mint, "error", err)
		result.TokenBalanceError = err.Error()
	} else {
		result.TokenBalance = balance
	}

	logger.Info("CreateTokenWorkflow completed",
		"owner", result.Owner,
		"mint", result.Mint,
		"signature", result.Signature,
	)
	return result, nil
}
