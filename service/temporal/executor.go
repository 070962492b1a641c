package temporal

import (
	"context"
	"errors"
	"fmt"

	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// Runner runs a token creation workflow to completion.
type Runner interface {
	RunCreateToken(ctx context.Context, input CreateTokenInput) (*CreateTokenResult, error)
}

// Identity reports the connected wallet.
type Identity interface {
	Identity() (solanago.PublicKey, bool)
}

// Executor runs token creation as a Temporal workflow. The token balance fetched by the
// workflow is returned from TokenBalance without another network call.
type Executor struct {
	runner   Runner
	identity Identity
}

// NewExecutor creates an executor that starts workflows through runner.
func NewExecutor(runner Runner, identity Identity) *Executor {
	return &Executor{runner: runner, identity: identity}
}

// CreateToken runs the workflow for the connected wallet.
func (e *Executor) CreateToken(ctx context.Context) (*mint.Result, error) {
	owner, ok := e.identity.Identity()
	if !ok {
		return nil, mint.ErrWalletNotConnected
	}

	out, err := e.runner.RunCreateToken(ctx, CreateTokenInput{Owner: owner.String()})
	if err != nil {
		var appErr *temporalsdk.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == ErrTypeWalletNotConnected {
			return nil, fmt.Errorf("%w: %v", mint.ErrWalletNotConnected, err)
		}
		return nil, err
	}

	return toMintResult(out)
}

// TokenBalance returns the balance the workflow fetched, or the error it recorded.
func (e *Executor) TokenBalance(ctx context.Context, res *mint.Result) (*solana.TokenBalance, error) {
	if res.TokenBalance != nil {
		return res.TokenBalance, nil
	}
	if res.TokenBalanceError != "" {
		return nil, errors.New(res.TokenBalanceError)
	}
	return nil, errors.New("token balance not fetched")
}

func toMintResult(out *CreateTokenResult) (*mint.Result, error) {
	mintKey, err := solanago.PublicKeyFromBase58(out.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid mint in workflow result: %w", err)
	}
	owner, err := solanago.PublicKeyFromBase58(out.Owner)
	if err != nil {
		return nil, fmt.Errorf("invalid owner in workflow result: %w", err)
	}
	sig, err := solanago.SignatureFromBase58(out.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid signature in workflow result: %w", err)
	}
	return &mint.Result{
		Mint:              mintKey,
		Signature:         sig,
		Owner:             owner,
		TokenBalance:      out.TokenBalance,
		TokenBalanceError: out.TokenBalanceError,
	}, nil
}

var (
	_ mint.Executor = (*Executor)(nil)
	_ Runner        = (*Client)(nil)
)
