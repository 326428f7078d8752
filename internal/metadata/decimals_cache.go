package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"pool-ledger-lab/internal/domain"
)

// DecimalsCache memoizes decimals() lookups per engine instance. It is
// constructor-supplied configuration, not ambient global state, so test
// instances stay isolated.
type DecimalsCache struct {
	provider Provider
	strict   bool
	logger   *zap.Logger

	mu   sync.RWMutex
	data map[string]int
}

// NewDecimalsCache creates a DecimalsCache. A nil logger defaults to zap.NewNop().
func NewDecimalsCache(provider Provider, strict bool, logger *zap.Logger) *DecimalsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecimalsCache{
		provider: provider,
		strict:   strict,
		logger:   logger,
		data:     make(map[string]int),
	}
}

// Get returns the token's decimals, defaulting to 18 when the lookup is
// unavailable. The fallback is logged with its cause; in strict mode it is a
// hard failure instead.
func (c *DecimalsCache) Get(ctx context.Context, token string) (int, error) {
	c.mu.RLock()
	d, ok := c.data[token]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := c.provider.Decimals(ctx, token)
	if err != nil {
		if c.strict || !errors.Is(err, ErrUnavailable) {
			return 0, fmt.Errorf("decimals(%s): %w", token, err)
		}
		c.logger.Warn("decimals lookup unavailable, defaulting to 18",
			zap.String("component", "metadata"),
			zap.String("token", token),
			zap.Error(err))
		d = domain.DefaultDecimals
	}

	c.mu.Lock()
	c.data[token] = d
	c.mu.Unlock()
	return d, nil
}

// Prefetch warms the cache for a set of tokens with bounded concurrency.
// Fetches run in parallel; the accounting pass itself stays single-writer.
func (c *DecimalsCache) Prefetch(ctx context.Context, tokens []string, workers int) error {
	if workers <= 0 {
		workers = 4
	}
	pool := pond.NewPool(workers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)

	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		group.SubmitErr(func() error {
			_, err := c.Get(ctx, token)
			return err
		})
	}

	return group.Wait()
}

// Seed inserts a known decimals value without consulting the provider.
func (c *DecimalsCache) Seed(token string, decimals int) {
	c.mu.Lock()
	c.data[token] = decimals
	c.mu.Unlock()
}
