package idhash

import (
	"fmt"
	"strings"
)

// txHashPrefixLen is the number of hex characters of the transaction hash
// carried into a flow record id. Must match existing exports exactly.
const txHashPrefixLen = 12

// ComputeFlowID builds the deterministic flow record id.
// Formula: {first 12 hex chars of txHash}-{logIndex}-{tokenIndex}
// The 0x prefix is not part of the 12 characters.
func ComputeFlowID(txHash string, logIndex, tokenIndex int) string {
	h := strings.TrimPrefix(strings.ToLower(txHash), "0x")
	if len(h) > txHashPrefixLen {
		h = h[:txHashPrefixLen]
	}
	return fmt.Sprintf("%s-%d-%d", h, logIndex, tokenIndex)
}

// ComputeRateID builds the deterministic oracle rate id.
// Formula: {tokenIdentityHex}-{blockNumber}
func ComputeRateID(token string, blockNumber int64) string {
	return fmt.Sprintf("%s-%d", strings.ToLower(token), blockNumber)
}
