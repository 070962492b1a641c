package solana

import (
	"fmt"
	"math/big"
	"net/url"

	"github.com/shopspring/decimal"
)

// LamportDecimals is the number of decimal places between lamports and SOL.
const LamportDecimals = 9

// FeeDisplayDecimals is the fixed precision used when rendering fees.
const FeeDisplayDecimals = 6

// NotAvailable is rendered for values the network did not report.
const NotAvailable = "N/A"

// LamportsToSOL converts lamports to an exact SOL string with trailing zeros trimmed.
// 1_000_000_000 becomes "1", 1 becomes "0.000000001".
func LamportsToSOL(lamports uint64) string {
	return formatUnits(lamports, LamportDecimals)
}

// FormatFee renders a fee in SOL rounded half-up to FeeDisplayDecimals places,
// or NotAvailable when the fee is unknown.
func FormatFee(lamports *uint64) string {
	if lamports == nil {
		return NotAvailable
	}
	return toDecimal(*lamports, LamportDecimals).StringFixed(FeeDisplayDecimals)
}

// ShortAddress abbreviates a base58 string as first6...last6.
func ShortAddress(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:6] + "..." + s[len(s)-6:]
}

// ExplorerTxURL builds the block-explorer link for a transaction signature on a cluster.
func ExplorerTxURL(explorerBase, signature, cluster string) string {
	u := fmt.Sprintf("%s/tx/%s", explorerBase, url.PathEscape(signature))
	if cluster != "" && cluster != "mainnet" {
		u += "?cluster=" + url.QueryEscape(cluster)
	}
	return u
}

func formatUnits(amount uint64, decimals int32) string {
	return toDecimal(amount, decimals).String()
}

func toDecimal(amount uint64, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals)
}
