// Package registry discovers and persists a pool's ordered token list by
// probing the pool's per-index coin getter, with an explicit overwrite policy
// for malformed or stale records.
package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/identity"
	"pool-ledger-lab/internal/metadata"
	"pool-ledger-lab/internal/storage"
)

// DefaultMaxProbeIndex bounds the per-pool coin probe.
const DefaultMaxProbeIndex = 8

// ErrNoCoins is returned when discovery finds no valid coin at any index.
var ErrNoCoins = errors.New("pool discovery found no valid coins")

// Config configures a Registry.
type Config struct {
	// Overwrite activates the recovery/diagnostic overwrite policy: existing
	// pool records are wholesale-replaced by freshly discovered ones. Not the
	// default posture.
	Overwrite bool

	// MaxProbeIndex bounds the coin probe. Zero means DefaultMaxProbeIndex.
	MaxProbeIndex int

	// LPTokens maps pool id to the pool's own share token address.
	LPTokens map[string]string
}

// Registry discovers pools through the metadata provider and persists them
// through a PoolStore.
type Registry struct {
	provider  metadata.Provider
	store     storage.PoolStore
	overwrite bool
	maxProbe  int
	lpTokens  map[string]string
	logger    *zap.Logger
}

// New creates a Registry. A nil logger defaults to zap.NewNop().
func New(provider metadata.Provider, store storage.PoolStore, cfg Config, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxProbe := cfg.MaxProbeIndex
	if maxProbe <= 0 {
		maxProbe = DefaultMaxProbeIndex
	}
	lpTokens := make(map[string]string, len(cfg.LPTokens))
	for pool, token := range cfg.LPTokens {
		lpTokens[identity.Canonical(pool)] = identity.Canonical(token)
	}
	return &Registry{
		provider:  provider,
		store:     store,
		overwrite: cfg.Overwrite,
		maxProbe:  maxProbe,
		lpTokens:  lpTokens,
		logger:    logger,
	}
}

// LPToken returns the configured share token for a pool, if any.
func (r *Registry) LPToken(poolID string) (string, bool) {
	t, ok := r.lpTokens[identity.Canonical(poolID)]
	return t, ok
}

// Discover probes coinAt(poolID, i) for i = 0..maxProbeIndex-1 in order,
// stopping at the first failed call or zero-address sentinel. Malformed
// entries are skipped with a warning; discovery continues with remaining
// indices.
func (r *Registry) Discover(ctx context.Context, poolID string) ([]string, error) {
	var coins []string
	for i := 0; i < r.maxProbe; i++ {
		coin, err := r.provider.CoinAt(ctx, poolID, i)
		if err != nil {
			if errors.Is(err, metadata.ErrUnavailable) {
				break // probed past the last coin
			}
			return nil, fmt.Errorf("coinAt(%s, %d): %w", poolID, i, err)
		}

		coin = identity.Canonical(coin)
		if coin == domain.ZeroAddress {
			break
		}
		if !identity.IsHexAddress(coin) {
			r.logger.Warn("malformed coin entry skipped",
				zap.String("component", "registry"),
				zap.String("pool", poolID),
				zap.Int("index", i),
				zap.String("entry", coin))
			continue
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

// Ensure returns the pool record for poolID, discovering and persisting it
// when absent. An existing record is wholesale-replaced when the overwrite
// policy is active or the record is structurally invalid (malformed entries
// or a coin-count mismatch against the fresh discovery). A valid record
// short-circuits without probing; the count-mismatch check runs on the
// probing paths and on Verify.
func (r *Registry) Ensure(ctx context.Context, poolID string, blockNumber int64) (*domain.Pool, error) {
	poolID = identity.Canonical(poolID)

	existing, err := r.store.Get(ctx, poolID)
	switch {
	case err == nil:
		if !r.overwrite && existing.Valid() {
			return existing, nil
		}
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	default:
		return nil, fmt.Errorf("get pool %s: %w", poolID, err)
	}

	coins, err := r.Discover(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if len(coins) == 0 {
		if existing != nil {
			// Keep whatever we had rather than replacing with nothing.
			return existing, nil
		}
		return nil, fmt.Errorf("pool %s: %w", poolID, ErrNoCoins)
	}

	fresh := &domain.Pool{
		ID:             poolID,
		Coins:          coins,
		CreatedAtBlock: blockNumber,
	}
	if existing != nil {
		fresh.CreatedAtBlock = existing.CreatedAtBlock
	}
	if lp, ok := r.lpTokens[poolID]; ok {
		fresh.LPToken = lp
	}

	if err := r.store.Replace(ctx, fresh); err != nil {
		return nil, fmt.Errorf("replace pool %s: %w", poolID, err)
	}

	r.logger.Info("pool record materialized",
		zap.String("component", "registry"),
		zap.String("pool", poolID),
		zap.Int("coins", len(coins)),
		zap.Bool("replaced", existing != nil))

	return fresh, nil
}

// Verify re-probes an existing pool record and compares it against the fresh
// discovery, wholesale-replacing it on malformed entries or a coin-count
// mismatch. Ensure never re-probes a valid record outside the overwrite
// policy, so this is the diagnostic path for records that drifted after a
// partial probe. Reports whether the record was replaced.
func (r *Registry) Verify(ctx context.Context, poolID string) (*domain.Pool, bool, error) {
	poolID = identity.Canonical(poolID)

	existing, err := r.store.Get(ctx, poolID)
	if err != nil {
		return nil, false, fmt.Errorf("get pool %s: %w", poolID, err)
	}

	coins, err := r.Discover(ctx, poolID)
	if err != nil {
		return nil, false, err
	}
	if len(coins) == 0 {
		// Keep whatever we had rather than replacing with nothing.
		return existing, false, nil
	}
	if existing.Valid() && len(existing.Coins) == len(coins) {
		return existing, false, nil
	}

	fresh := &domain.Pool{
		ID:             poolID,
		Coins:          coins,
		CreatedAtBlock: existing.CreatedAtBlock,
	}
	if lp, ok := r.lpTokens[poolID]; ok {
		fresh.LPToken = lp
	}

	if err := r.store.Replace(ctx, fresh); err != nil {
		return nil, false, fmt.Errorf("replace pool %s: %w", poolID, err)
	}

	r.logger.Info("pool record replaced on verification",
		zap.String("component", "registry"),
		zap.String("pool", poolID),
		zap.Int("coinsBefore", len(existing.Coins)),
		zap.Int("coinsAfter", len(coins)))

	return fresh, true, nil
}
