// Package identity corrects token identities reported by a misconfigured
// upstream: two addresses are known to be mutually swapped, and positional
// token references may point into pool metadata that is missing or malformed.
package identity

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pool-ledger-lab/internal/domain"
)

// SwapPair holds the two token identities known to be reported swapped.
type SwapPair struct {
	A string
	B string
}

// Config configures a Resolver.
type Config struct {
	// Swap is the mutually swapped address pair. Normalization maps A to B
	// and B to A; every other identity passes through unchanged.
	Swap SwapPair

	// FallbackCoins is an injected per-pool ordered default token list,
	// consulted by index when the registry has no valid entry. This is
	// pool-specific configuration, not a universal constant.
	FallbackCoins map[string][]string
}

// Resolver maps raw token references to corrected identities.
type Resolver struct {
	swapA    string
	swapB    string
	fallback map[string][]string
	logger   *zap.Logger
}

// NewResolver creates a Resolver. A nil logger defaults to zap.NewNop().
func NewResolver(cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := make(map[string][]string, len(cfg.FallbackCoins))
	for pool, coins := range cfg.FallbackCoins {
		normalized := make([]string, len(coins))
		for i, c := range coins {
			normalized[i] = Canonical(c)
		}
		fallback[Canonical(pool)] = normalized
	}
	return &Resolver{
		swapA:    Canonical(cfg.Swap.A),
		swapB:    Canonical(cfg.Swap.B),
		fallback: fallback,
		logger:   logger,
	}
}

// Canonical lowercases an address and ensures the 0x prefix.
func Canonical(addr string) string {
	a := strings.ToLower(strings.TrimSpace(addr))
	if a == "" {
		return a
	}
	if !strings.HasPrefix(a, "0x") {
		a = "0x" + a
	}
	return a
}

// IsHexAddress reports whether s is a well-formed fixed-width EVM address:
// 0x prefix followed by exactly 40 hex characters.
func IsHexAddress(s string) bool {
	s = strings.ToLower(s)
	if !strings.HasPrefix(s, "0x") || len(s) != 42 {
		return false
	}
	for _, r := range s[2:] {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Normalize applies the swap correction to an address. It is a pure function
// of the input: symmetric on the configured pair and a no-op everywhere else,
// so applying it twice returns the original identity.
func (r *Resolver) Normalize(addr string) (before, after string, swapped bool) {
	before = Canonical(addr)
	switch before {
	case r.swapA:
		return before, r.swapB, true
	case r.swapB:
		return before, r.swapA, true
	default:
		return before, before, false
	}
}

// ResolveRef resolves a raw token reference, which is either a hex address or
// a decimal index into the pool's coin list, and applies normalization.
// coins is the pool's discovered coin list; it may be nil or incomplete.
func (r *Resolver) ResolveRef(poolID, ref string, coins []string) (before, after string, swapped bool) {
	if IsHexAddress(ref) {
		return r.Normalize(ref)
	}

	idx, err := strconv.Atoi(strings.TrimSpace(ref))
	if err != nil || idx < 0 {
		r.logger.Warn("unresolvable token reference",
			zap.String("component", "identity"),
			zap.String("pool", poolID),
			zap.String("ref", ref))
		return domain.UnknownTokenAddress, domain.UnknownTokenAddress, false
	}
	return r.ResolveIndex(poolID, idx, coins)
}

// ResolveIndex resolves a positional token reference. When the coin list has
// no valid entry at the index (absent pool, out-of-range index, or a zero
// identity), the injected per-pool fallback list is consulted. An index with
// no fallback configured yields the unknown sentinel rather than an error.
func (r *Resolver) ResolveIndex(poolID string, idx int, coins []string) (before, after string, swapped bool) {
	if idx >= 0 && idx < len(coins) {
		c := Canonical(coins[idx])
		if IsHexAddress(c) && c != domain.ZeroAddress {
			return r.Normalize(c)
		}
	}

	pool := Canonical(poolID)
	if defaults, ok := r.fallback[pool]; ok && idx >= 0 && idx < len(defaults) {
		r.logger.Warn("token index resolved via fallback list",
			zap.String("component", "identity"),
			zap.String("pool", pool),
			zap.Int("index", idx),
			zap.String("token", defaults[idx]))
		return r.Normalize(defaults[idx])
	}

	r.logger.Warn("token index has no registry entry and no fallback",
		zap.String("component", "identity"),
		zap.String("pool", pool),
		zap.Int("index", idx))
	return domain.UnknownTokenAddress, domain.UnknownTokenAddress, false
}
