package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/solwallet/service/metrics"
	"github.com/brojonat/solwallet/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// MintAccountSize is the size in bytes of an SPL token mint account.
const MintAccountSize = 82

// ErrWalletNotConnected is returned when token creation is requested without a wallet session.
var ErrWalletNotConnected = errors.New("wallet not connected")

// Wallet is the part of the wallet session the workflow needs.
type Wallet interface {
	Identity() (solanago.PublicKey, bool)
	Network() *solana.Client
	SendTransaction(ctx context.Context, tx *solanago.Transaction, extraSigners ...solanago.PrivateKey) (solanago.Signature, error)
}

// Result describes a confirmed mint account creation.
type Result struct {
	Mint      solanago.PublicKey `json:"mint"`
	Signature solanago.Signature `json:"signature"`
	Owner     solanago.PublicKey `json:"owner"`

	// Set by executors that fetch the token balance as part of the same run.
	TokenBalance      *solana.TokenBalance `json:"token_balance,omitempty"`
	TokenBalanceError string               `json:"token_balance_error,omitempty"`
}

// Executor runs token creation. The token balance is a separate step so that its failure
// never turns a confirmed creation into an error.
type Executor interface {
	CreateToken(ctx context.Context) (*Result, error)
	TokenBalance(ctx context.Context, res *Result) (*solana.TokenBalance, error)
}

// Workflow creates token mint accounts in-process through the connected wallet.
type Workflow struct {
	wallet         Wallet
	confirmTimeout time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewWorkflow creates a workflow. If metrics is nil, no metrics will be recorded.
func NewWorkflow(wallet Wallet, confirmTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Workflow {
	return &Workflow{
		wallet:         wallet,
		confirmTimeout: confirmTimeout,
		logger:         logger,
		metrics:        m,
	}
}

// CreateToken submits a new mint account and waits for confirmation. No retry is attempted.
func (w *Workflow) CreateToken(ctx context.Context) (*Result, error) {
	res, err := w.Submit(ctx)
	if w.metrics != nil {
		switch {
		case errors.Is(err, ErrWalletNotConnected):
			w.metrics.RecordMintCreation("not_connected")
		case err != nil:
			w.metrics.RecordMintCreation("failed")
		default:
			w.metrics.RecordMintCreation("success")
		}
	}
	return res, err
}

// Owner returns the identity new mints are created for.
func (w *Workflow) Owner() (solanago.PublicKey, bool) {
	return w.wallet.Identity()
}

// TokenBalance fetches the owner's balance of the new mint.
func (w *Workflow) TokenBalance(ctx context.Context, res *Result) (*solana.TokenBalance, error) {
	return w.FetchTokenBalance(ctx, res.Owner, res.Mint)
}

// Submit builds, signs, broadcasts and confirms the create-account transaction.
func (w *Workflow) Submit(ctx context.Context) (*Result, error) {
	owner, ok := w.wallet.Identity()
	if !ok {
		return nil, ErrWalletNotConnected
	}

	start := time.Now()
	res, err := w.submit(ctx, owner)
	w.recordStep("submit", start, err)
	if err != nil {
		w.logger.ErrorContext(ctx, "token creation failed",
			"owner", owner.String(),
			"error", err,
		)
		return nil, err
	}

	w.logger.InfoContext(ctx, "token mint account created",
		"owner", owner.String(),
		"mint", res.Mint.String(),
		"signature", res.Signature.String(),
	)
	return res, nil
}

func (w *Workflow) submit(ctx context.Context, owner solanago.PublicKey) (*Result, error) {
	mintKey, err := solanago.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mint key: %w", err)
	}

	network := w.wallet.Network()

	lamports, err := network.RentExemptBalance(ctx, MintAccountSize)
	if err != nil {
		return nil, err
	}

	blockhash, err := network.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := BuildCreateMintTx(owner, mintKey.PublicKey(), lamports, blockhash)
	if err != nil {
		return nil, err
	}

	sig, err := w.wallet.SendTransaction(ctx, tx, mintKey)
	if err != nil {
		return nil, err
	}

	if err := network.AwaitConfirmation(ctx, sig, w.confirmTimeout); err != nil {
		return nil, err
	}

	return &Result{
		Mint:      mintKey.PublicKey(),
		Signature: sig,
		Owner:     owner,
	}, nil
}

// FetchTokenBalance reads the balance of the owner's associated token account for mint.
func (w *Workflow) FetchTokenBalance(ctx context.Context, owner, mint solanago.PublicKey) (*solana.TokenBalance, error) {
	start := time.Now()

	ata, _, err := solanago.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		err = fmt.Errorf("failed to derive associated token account: %w", err)
		w.recordStep("token_balance", start, err)
		return nil, err
	}

	balance, err := w.wallet.Network().TokenBalance(ctx, ata)
	w.recordStep("token_balance", start, err)
	if err != nil {
		return nil, err
	}
	return balance, nil
}

func (w *Workflow) recordStep(step string, start time.Time, err error) {
	if w.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	w.metrics.RecordMintStep(step, status, time.Since(start).Seconds())
}

// BuildCreateMintTx builds the single-instruction transaction that allocates a rent exempt,
// token-program owned mint account paid for by owner.
func BuildCreateMintTx(owner, mint solanago.PublicKey, lamports uint64, blockhash solanago.Hash) (*solanago.Transaction, error) {
	instruction := system.NewCreateAccountInstruction(
		lamports,
		MintAccountSize,
		solanago.TokenProgramID,
		owner,
		mint,
	).Build()

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{instruction},
		blockhash,
		solanago.TransactionPayer(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

var _ Executor = (*Workflow)(nil)
