package domain

import "github.com/shopspring/decimal"

// Rate source tags.
const (
	RateSourceTable    = "table"    // static conversion-rate table
	RateSourceOnChain  = "on-chain" // redemption-rate call at a specific block
	RateSourceFallback = "fallback" // default rate 1 after a failed lookup
)

// OracleRate is a conversion rate for a token at a specific block.
// Records are immutable once created; creation is idempotent per (token, block).
type OracleRate struct {
	ID          string          // deterministic: {tokenHex}-{blockNumber}
	Token       string          // token address
	BlockNumber int64           // block the rate applies to
	Rate        decimal.Decimal // multiplier into the canonical unit
	Source      string          // one of the RateSource* tags
}
