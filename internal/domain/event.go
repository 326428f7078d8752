package domain

// FlowKind distinguishes deposit and withdrawal flows.
type FlowKind string

// Flow kind constants.
const (
	FlowDeposit    FlowKind = "deposit"
	FlowWithdrawal FlowKind = "withdrawal"
)

// LiquidityChangeEvent is one normalized input row from the transport
// collaborator: a single token-index slice of an add/remove liquidity event.
type LiquidityChangeEvent struct {
	ID         string   // transport-assigned row id, may be empty
	Kind       FlowKind // deposit or withdrawal
	Provider   string   // user address supplying or removing liquidity
	PoolID     string   // pool address
	TokenRef   string   // raw token reference: hex address, or decimal index into the pool's coin list
	TokenIndex int      // position of this amount within the event's amounts array
	RawAmount  string   // unconverted integer amount as a decimal string
	BlockNum   int64    // block number
	Timestamp  int64    // block timestamp (unix seconds)
	TxHash     string   // transaction hash
	LogIndex   int      // log index within the block
}
