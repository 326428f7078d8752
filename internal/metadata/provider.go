// Package metadata defines the on-chain token metadata capability consumed
// by the accounting engine. Every call may fail; an unavailable/reverted
// outcome is explicit and distinct from a normal value.
package metadata

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when an on-chain read reverts or the value is
// otherwise unavailable. Callers fall back to their documented defaults
// (or fail hard in strict mode).
var ErrUnavailable = errors.New("metadata unavailable")

// Provider exposes on-chain token metadata reads.
type Provider interface {
	// Decimals returns the ERC-20 decimals of a token.
	Decimals(ctx context.Context, token string) (int, error)

	// CoinAt returns the token address at the given index of a pool's coin
	// list. Probing past the last coin yields ErrUnavailable.
	CoinAt(ctx context.Context, pool string, index int) (string, error)

	// RedemptionRate returns the token's redemption rate into the canonical
	// unit at a specific block.
	RedemptionRate(ctx context.Context, token string, blockNumber int64) (decimal.Decimal, error)
}
