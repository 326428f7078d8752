// Package eth implements the metadata provider against a live Ethereum node.
package eth

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/ethrpc"
	"pool-ledger-lab/internal/metadata"
)

// Canonical call signatures.
const (
	sigDecimals = "decimals()"
	sigCoins    = "coins(uint256)"
	sigRatio    = "ratio()"
)

// Provider reads token metadata via eth_call.
type Provider struct {
	client ethrpc.Client
	// rateSig overrides the redemption-rate getter signature when set.
	rateSig string
}

// Option configures Provider.
type Option func(*Provider)

// WithRateSignature sets a custom redemption-rate getter, e.g.
// "getPooledEthByShares(uint256)" style contracts expose it under other names.
func WithRateSignature(sig string) Option {
	return func(p *Provider) {
		p.rateSig = sig
	}
}

// NewProvider creates an on-chain metadata provider.
func NewProvider(client ethrpc.Client, opts ...Option) *Provider {
	p := &Provider{client: client, rateSig: sigRatio}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compile-time interface check.
var _ metadata.Provider = (*Provider)(nil)

// Decimals reads the ERC-20 decimals of a token at the latest block.
func (p *Provider) Decimals(ctx context.Context, token string) (int, error) {
	ret, err := p.client.CallContract(ctx, token, ethrpc.EncodeCall(sigDecimals), -1)
	if err != nil {
		return 0, wrapCallErr("decimals", token, err)
	}
	n, err := ethrpc.DecodeUint64(ret)
	if err != nil {
		return 0, fmt.Errorf("decode decimals of %s: %w", token, err)
	}
	return int(n), nil
}

// CoinAt reads the pool's coin list at one index. Out-of-range indices revert
// on chain, which surfaces as metadata.ErrUnavailable.
func (p *Provider) CoinAt(ctx context.Context, pool string, index int) (string, error) {
	ret, err := p.client.CallContract(ctx, pool, ethrpc.EncodeCall(sigCoins, int64(index)), -1)
	if err != nil {
		return "", wrapCallErr("coins", pool, err)
	}
	addr, err := ethrpc.DecodeAddress(ret)
	if err != nil {
		return "", fmt.Errorf("decode coins(%d) of %s: %w", index, pool, err)
	}
	return addr, nil
}

// RedemptionRate reads the token's rate getter at a historical block. The
// return word is a uint256 scaled by 10^18.
func (p *Provider) RedemptionRate(ctx context.Context, token string, blockNumber int64) (decimal.Decimal, error) {
	ret, err := p.client.CallContract(ctx, token, ethrpc.EncodeCall(p.rateSig), blockNumber)
	if err != nil {
		return decimal.Zero, wrapCallErr("rate", token, err)
	}
	rate, err := ethrpc.DecodeScaledRate(ret)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode rate of %s: %w", token, err)
	}
	return rate, nil
}

// wrapCallErr maps reverts to the provider-level unavailable outcome and
// keeps transport failures as-is.
func wrapCallErr(op, target string, err error) error {
	if errors.Is(err, ethrpc.ErrReverted) {
		return fmt.Errorf("%s of %s: %w", op, target, metadata.ErrUnavailable)
	}
	return fmt.Errorf("%s of %s: %w", op, target, err)
}
