package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLamportsToSOL(t *testing.T) {
	tests := []struct {
		name     string
		lamports uint64
		expected string
	}{
		{name: "one SOL", lamports: 1_000_000_000, expected: "1"},
		{name: "two and a half SOL", lamports: 2_500_000_000, expected: "2.5"},
		{name: "one lamport keeps full precision", lamports: 1, expected: "0.000000001"},
		{name: "zero", lamports: 0, expected: "0"},
		{name: "mixed", lamports: 1_234_567_891, expected: "1.234567891"},
		{name: "max uint64", lamports: ^uint64(0), expected: "18446744073.709551615"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LamportsToSOL(tt.lamports))
		})
	}
}

func TestFormatFee(t *testing.T) {
	fee := func(v uint64) *uint64 { return &v }

	assert.Equal(t, NotAvailable, FormatFee(nil))
	assert.Equal(t, "0.000005", FormatFee(fee(5000)))
	assert.Equal(t, "0.000000", FormatFee(fee(0)))
	assert.Equal(t, "0.000001", FormatFee(fee(500)))
	assert.Equal(t, "0.000000", FormatFee(fee(499)))
	assert.Equal(t, "1.000000", FormatFee(fee(1_000_000_000)))
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "9WzDXw...YtAWWM", ShortAddress("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"))
	assert.Equal(t, "short", ShortAddress("short"))
}

func TestExplorerTxURL(t *testing.T) {
	assert.Equal(t,
		"https://explorer.solana.com/tx/abc?cluster=devnet",
		ExplorerTxURL("https://explorer.solana.com", "abc", "devnet"),
	)
	assert.Equal(t,
		"https://explorer.solana.com/tx/abc",
		ExplorerTxURL("https://explorer.solana.com", "abc", "mainnet"),
	)
}

func TestTokenBalanceDisplay(t *testing.T) {
	assert.Equal(t, "0", TokenBalance{Amount: 0, Decimals: 9}.Display())
	assert.Equal(t, "12.5", TokenBalance{Amount: 12_500_000, Decimals: 6}.Display())
	assert.Equal(t, "42", TokenBalance{Amount: 42, Decimals: 0}.Display())
}
