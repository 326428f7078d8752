package domain

// Token represents an ERC-20 token position inside a pool.
type Token struct {
	Address  string // lowercase 0x-prefixed hex address
	Decimals int    // ERC-20 decimals, 18 when the on-chain lookup is unavailable
}

// Well-known identity sentinels.
const (
	// ZeroAddress is the EVM zero address, used by pools as an empty coin slot.
	ZeroAddress = "0x0000000000000000000000000000000000000000"

	// UnknownTokenAddress marks a token reference that could not be resolved.
	// Downstream stages treat it as valid-but-unrated (conversion rate 1).
	UnknownTokenAddress = "0xffffffffffffffffffffffffffffffffffffffff"
)

// DefaultDecimals is assumed when decimals() is unavailable for a token.
const DefaultDecimals = 18
