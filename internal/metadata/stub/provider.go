// Package stub provides a configurable in-memory metadata.Provider for tests
// and offline reconstruction runs.
package stub

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/metadata"
)

// Provider implements metadata.Provider from in-memory maps. Missing entries
// yield metadata.ErrUnavailable, mirroring a reverted on-chain call.
type Provider struct {
	DecimalsByToken map[string]int
	CoinsByPool     map[string][]string
	RatesByToken    map[string]decimal.Decimal

	// DecimalsCalls counts Decimals invocations, for memoization assertions.
	DecimalsCalls atomic.Int64
	// RateCalls counts RedemptionRate invocations.
	RateCalls atomic.Int64
}

// NewProvider creates an empty stub provider.
func NewProvider() *Provider {
	return &Provider{
		DecimalsByToken: make(map[string]int),
		CoinsByPool:     make(map[string][]string),
		RatesByToken:    make(map[string]decimal.Decimal),
	}
}

// Compile-time interface check.
var _ metadata.Provider = (*Provider)(nil)

// Decimals returns the configured decimals for a token.
func (p *Provider) Decimals(_ context.Context, token string) (int, error) {
	p.DecimalsCalls.Add(1)
	d, ok := p.DecimalsByToken[token]
	if !ok {
		return 0, fmt.Errorf("decimals(%s): %w", token, metadata.ErrUnavailable)
	}
	return d, nil
}

// CoinAt returns the configured coin at an index of a pool's coin list.
func (p *Provider) CoinAt(_ context.Context, pool string, index int) (string, error) {
	coins, ok := p.CoinsByPool[pool]
	if !ok || index < 0 || index >= len(coins) {
		return "", fmt.Errorf("coins(%s, %d): %w", pool, index, metadata.ErrUnavailable)
	}
	return coins[index], nil
}

// RedemptionRate returns the configured rate for a token. Rates are keyed by
// token only; the stub applies the same rate at every block.
func (p *Provider) RedemptionRate(_ context.Context, token string, _ int64) (decimal.Decimal, error) {
	p.RateCalls.Add(1)
	r, ok := p.RatesByToken[token]
	if !ok {
		return decimal.Zero, fmt.Errorf("redemptionRate(%s): %w", token, metadata.ErrUnavailable)
	}
	return r, nil
}
