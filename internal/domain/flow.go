package domain

import "github.com/shopspring/decimal"

// FlowRecord is a materialized deposit or withdrawal with corrected token
// identity and rate-converted amount. Content is immutable for a given ID;
// replaying the same event overwrites the record with identical content.
type FlowRecord struct {
	ID          string          // deterministic: {txHashPrefix12}-{logIndex}-{tokenIndex}
	Kind        FlowKind        // deposit or withdrawal
	Provider    string          // user address
	PoolID      string          // pool address
	Token       string          // resolved token address (after normalization)
	TokenIndex  int             // token position within the event
	IsLPToken   bool            // true when Token is the pool's own share token
	AmountRaw   string          // raw integer amount as recorded on chain
	AmountWETH  decimal.Decimal // canonical amount after decimals scaling and rate conversion
	RateID      string          // reference to the OracleRate used for conversion
	BlockNumber int64           // block number
	Timestamp   int64           // block timestamp (unix seconds)
	TxHash      string          // transaction hash
}
