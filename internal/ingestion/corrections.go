package ingestion

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pool-ledger-lab/internal/convert"
	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/metadata"
)

// Injector merges operator-authored correction rows into the event stream.
// The human decimal amount is converted back to its raw integer form using
// the token's decimals, so corrections travel the same normalization,
// conversion and audit path as observed events.
type Injector struct {
	decimals *metadata.DecimalsCache
	logger   *zap.Logger
}

// NewInjector creates an Injector. A nil logger defaults to zap.NewNop().
func NewInjector(decimals *metadata.DecimalsCache, logger *zap.Logger) *Injector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Injector{decimals: decimals, logger: logger}
}

// Inject converts corrections to events, appends them to the stream and
// restores deterministic ordering. Malformed corrections are dropped with a
// warning; metadata failures follow the decimals cache's strictness.
func (inj *Injector) Inject(ctx context.Context, events []*domain.LiquidityChangeEvent, corrections []domain.Correction) ([]*domain.LiquidityChangeEvent, error) {
	for _, corr := range corrections {
		event, err := inj.toEvent(ctx, corr)
		if err != nil {
			if errors.Is(err, convert.ErrParse) {
				inj.logger.Warn("dropping malformed correction",
					zap.String("component", "ingestion"),
					zap.String("provider", corr.Provider),
					zap.String("token", corr.Token),
					zap.String("amount", corr.Amount),
					zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("inject correction for %s: %w", corr.Provider, err)
		}
		events = append(events, event)
	}

	SortEvents(events)
	return events, nil
}

// toEvent builds one synthetic event row from a correction.
func (inj *Injector) toEvent(ctx context.Context, corr domain.Correction) (*domain.LiquidityChangeEvent, error) {
	decimals, err := inj.decimals.Get(ctx, corr.Token)
	if err != nil {
		return nil, err
	}

	raw, err := convert.ToRaw(corr.Amount, decimals)
	if err != nil {
		return nil, err
	}

	return &domain.LiquidityChangeEvent{
		Kind:      corr.Kind,
		Provider:  corr.Provider,
		PoolID:    corr.PoolID,
		TokenRef:  corr.Token,
		RawAmount: raw,
		BlockNum:  corr.BlockNum,
		Timestamp: corr.Timestamp,
		TxHash:    corr.TxHash,
		LogIndex:  corr.LogIndex,
	}, nil
}
