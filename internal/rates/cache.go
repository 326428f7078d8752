package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/idhash"
	"pool-ledger-lab/internal/storage"
)

// ComputeFn produces a rate and its source tag for (token, block) when no
// record exists yet. It may consult the metadata provider and is invoked at
// most once per key.
type ComputeFn func(ctx context.Context) (decimal.Decimal, string, error)

// OracleCache memoizes (token, block) -> rate records through an
// OracleRateStore. Existing records are returned unchanged; rates can evolve
// across blocks without corrupting history.
type OracleCache struct {
	store  storage.OracleRateStore
	logger *zap.Logger
}

// NewOracleCache creates an OracleCache. A nil logger defaults to zap.NewNop().
func NewOracleCache(store storage.OracleRateStore, logger *zap.Logger) *OracleCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OracleCache{store: store, logger: logger}
}

// GetOrCreate returns the rate record for (token, block), invoking computeFn
// exactly once when no record exists. Never mutates an existing record.
func (c *OracleCache) GetOrCreate(ctx context.Context, token string, blockNumber int64, computeFn ComputeFn) (*domain.OracleRate, error) {
	id := idhash.ComputeRateID(token, blockNumber)

	existing, err := c.store.Get(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get oracle rate %s: %w", id, err)
	}

	rate, source, err := computeFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("compute rate %s: %w", id, err)
	}

	record := &domain.OracleRate{
		ID:          id,
		Token:       token,
		BlockNumber: blockNumber,
		Rate:        rate,
		Source:      source,
	}

	if err := c.store.Create(ctx, record); err != nil {
		// A concurrent writer won the race; the existing record is canonical.
		if errors.Is(err, storage.ErrDuplicateKey) {
			return c.store.Get(ctx, id)
		}
		return nil, fmt.Errorf("create oracle rate %s: %w", id, err)
	}

	c.logger.Debug("oracle rate created",
		zap.String("component", "rates"),
		zap.String("id", id),
		zap.String("rate", rate.String()),
		zap.String("source", source))

	return record, nil
}
