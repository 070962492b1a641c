package solana

import (
	"time"
)

// TransactionSummary is the read-only projection of a transaction shown in the history table.
// This is our domain model, independent of the RPC response format.
type TransactionSummary struct {
	Signature string     `json:"signature"`
	BlockTime *time.Time `json:"block_time,omitempty"` // nil when the network has no timestamp
	Fee       *uint64    `json:"fee,omitempty"`        // lamports, nil when details are unavailable
	Success   bool       `json:"success"`
}

// TokenBalance is the balance of an SPL token account in base units.
type TokenBalance struct {
	Account  string `json:"account"`
	Amount   uint64 `json:"amount"`
	Decimals uint8  `json:"decimals"`
}

// Display renders the balance in whole-token units.
func (b TokenBalance) Display() string {
	return formatUnits(b.Amount, int32(b.Decimals))
}
