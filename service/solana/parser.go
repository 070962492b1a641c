package solana

import (
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

// signatureToSummary converts an RPC TransactionSignature to our domain summary.
// Note: the signature listing carries no fee, so Fee stays nil until details are merged in.
func signatureToSummary(sig *rpc.TransactionSignature) *TransactionSummary {
	summary := &TransactionSummary{
		Signature: sig.Signature.String(),
		Success:   sig.Err == nil,
	}

	if sig.BlockTime != nil {
		t := sig.BlockTime.Time().UTC()
		summary.BlockTime = &t
	}

	return summary
}

// summaryFromResult merges full transaction details into the summary built from the listing.
// A nil result (transaction pruned or not yet visible at the requested commitment) keeps the
// listing's metadata.
func summaryFromResult(sig *rpc.TransactionSignature, result *rpc.GetTransactionResult) *TransactionSummary {
	summary := signatureToSummary(sig)
	if result == nil {
		return summary
	}

	if result.BlockTime != nil {
		t := time.Unix(int64(*result.BlockTime), 0).UTC()
		summary.BlockTime = &t
	}

	if result.Meta != nil {
		fee := result.Meta.Fee
		summary.Fee = &fee
		summary.Success = result.Meta.Err == nil
	}

	return summary
}
