package domain

// Correction is an operator-authored row merged into the input stream ahead
// of processing. The human-readable decimal amount is converted to the raw
// integer representation using the token's canonical decimals, so corrections
// flow through the same normalization, conversion and audit logic as
// organically observed events.
type Correction struct {
	Kind      FlowKind // deposit or withdrawal
	Provider  string   // user address
	PoolID    string   // pool address
	Token     string   // token address (pre-normalization identity)
	Amount    string   // human-readable decimal amount, e.g. "4.99367"
	BlockNum  int64    // block number to attribute the row to
	Timestamp int64    // block timestamp (unix seconds)
	TxHash    string   // transaction hash, may reference the corrected tx
	LogIndex  int      // synthetic log index; keeps (block, logIndex) ordering stable
}
