package dashboard

import (
	"time"

	"github.com/brojonat/solwallet/service/account"
	"github.com/brojonat/solwallet/service/mint"
	"github.com/brojonat/solwallet/service/notify"
	"github.com/brojonat/solwallet/service/solana"
)

// BalanceUnavailable is shown when the balance could not be fetched and none is known.
const BalanceUnavailable = "unavailable"

// State is a point-in-time copy of everything the dashboard renders.
type State struct {
	Connected    bool   `json:"connected"`
	Account      string `json:"account,omitempty"`
	ShortAccount string `json:"short_account,omitempty"`
	Cluster      string `json:"cluster"`
	RPCURL       string `json:"rpc_url"`

	Balance            *account.Balance `json:"balance,omitempty"`
	BalanceLoading     bool             `json:"balance_loading"`
	BalanceUnavailable bool             `json:"balance_unavailable"`

	// TokenBalance is set only once the post-creation fetch succeeds.
	TokenBalance *solana.TokenBalance `json:"token_balance,omitempty"`
	LastMint     *mint.Result         `json:"last_mint,omitempty"`

	Transactions        []TransactionRow `json:"transactions"`
	TransactionsLoading bool             `json:"transactions_loading"`

	Creating bool `json:"creating"`
	Copied   bool `json:"copied"`

	Notifications []notify.Notification `json:"notifications"`
}

// BalanceText is the balance cell: the SOL amount, "unavailable", or empty while loading.
func (s State) BalanceText() string {
	switch {
	case s.Balance != nil:
		return s.Balance.SOL
	case s.BalanceUnavailable:
		return BalanceUnavailable
	default:
		return ""
	}
}

// TransactionRow is one rendered row of the history table.
type TransactionRow struct {
	Signature      string `json:"signature"`
	ShortSignature string `json:"short_signature"`
	Time           string `json:"time"`
	Fee            string `json:"fee"`
	Status         string `json:"status"`
	ExplorerURL    string `json:"explorer_url"`
}

// NewTransactionRow renders a summary for the history table.
func NewTransactionRow(s *solana.TransactionSummary, explorerBase, cluster string) TransactionRow {
	row := TransactionRow{
		Signature:      s.Signature,
		ShortSignature: solana.ShortAddress(s.Signature),
		Time:           solana.NotAvailable,
		Fee:            solana.FormatFee(s.Fee),
		Status:         "Failed",
		ExplorerURL:    solana.ExplorerTxURL(explorerBase, s.Signature, cluster),
	}
	if s.BlockTime != nil {
		row.Time = s.BlockTime.UTC().Format(time.DateTime)
	}
	if s.Success {
		row.Status = "Success"
	}
	return row
}
