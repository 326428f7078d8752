// Package engine runs the accounting pass: it consumes the ordered event
// stream, materializes flow records with corrected token identities and
// rate-converted amounts, maintains per-user aggregates and emits the audit
// trail. One on-chain event's per-token-index rows commit atomically.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pool-ledger-lab/internal/convert"
	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/identity"
	"pool-ledger-lab/internal/idhash"
	"pool-ledger-lab/internal/ingestion"
	"pool-ledger-lab/internal/metadata"
	"pool-ledger-lab/internal/rates"
	"pool-ledger-lab/internal/registry"
	"pool-ledger-lab/internal/storage"
)

// Options configures an Engine. All collaborators are required unless noted.
type Options struct {
	Resolver  *identity.Resolver
	Decimals  *metadata.DecimalsCache
	RateCache *rates.OracleCache
	// RateTable is the static conversion-rate configuration. May be nil;
	// every token then falls through to the on-chain rate lookup.
	RateTable *rates.Table
	// Metadata serves on-chain redemption-rate reads for tokens absent from
	// the table. May be nil; such tokens then convert at the default rate 1.
	Metadata metadata.Provider
	Registry *registry.Registry

	FlowStore  storage.FlowRecordStore
	AggStore   storage.UserAggregateStore
	AuditStore storage.AuditStore

	// Strict turns every fallback (default decimals, rate 1, unknown
	// identity) into a hard error.
	Strict bool
	// SkipExisting skips rows whose flow record already exists instead of
	// overwriting them. Overwrite is the default posture.
	SkipExisting bool

	Logger *zap.Logger
}

// Stats summarizes one accounting pass.
type Stats struct {
	EventsProcessed  int // on-chain events fully committed
	EventsAborted    int // events dropped after a fatal pool failure
	RowsMaterialized int
	RowsSkipped      int // zero amounts, parse failures, skip-existing hits
}

// Engine is the single-writer accounting pass over an ordered event stream.
type Engine struct {
	opts   Options
	logger *zap.Logger
}

// New creates an Engine. A nil logger defaults to zap.NewNop().
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, logger: logger}
}

// eventKey identifies one on-chain event; its per-token-index rows form the
// atomic commit unit.
type eventKey struct {
	txHash   string
	logIndex int
}

// aggDelta is one row's staged contribution to a user's aggregate.
type aggDelta struct {
	user   string
	kind   domain.FlowKind
	amount decimal.Decimal
	block  int64
}

// staging collects one event's pending writes. Nothing is persisted until
// the whole event decodes and converts cleanly.
type staging struct {
	records []*domain.FlowRecord
	audits  []*domain.AuditRow
	deltas  []aggDelta

	// byID indexes staged records so a duplicate row inside the same batch
	// is treated like a replay, not a second flow.
	byID map[string]int
}

// staged returns the pending record for id, if this event already staged one.
func (st *staging) staged(id string) (*domain.FlowRecord, int, bool) {
	if i, ok := st.byID[id]; ok {
		return st.records[i], i, true
	}
	return nil, 0, false
}

// ProcessEvents runs the accounting pass over the event stream. Input is
// re-sorted into canonical (blockNumber, logIndex, tokenIndex) order; the
// pass itself is strictly sequential.
func (e *Engine) ProcessEvents(ctx context.Context, events []*domain.LiquidityChangeEvent) (*Stats, error) {
	ingestion.SortEvents(events)

	stats := &Stats{}

	for start := 0; start < len(events); {
		end := start + 1
		key := eventKey{events[start].TxHash, events[start].LogIndex}
		for end < len(events) && (eventKey{events[end].TxHash, events[end].LogIndex}) == key {
			end++
		}

		if err := e.processEvent(ctx, events[start:end], stats); err != nil {
			return stats, err
		}
		start = end
	}

	return stats, nil
}

// processEvent stages and commits one on-chain event's rows. A pool that
// cannot materialize after one discovery retry aborts this event only.
func (e *Engine) processEvent(ctx context.Context, rows []*domain.LiquidityChangeEvent, stats *Stats) error {
	first := rows[0]

	pool, err := e.ensurePool(ctx, first.PoolID, first.BlockNum)
	if err != nil {
		if e.opts.Strict {
			return fmt.Errorf("event %s/%d: %w", first.TxHash, first.LogIndex, err)
		}
		e.logger.Error("pool failed to materialize, aborting event",
			zap.String("component", "engine"),
			zap.String("pool", first.PoolID),
			zap.String("txHash", first.TxHash),
			zap.Int("logIndex", first.LogIndex),
			zap.Error(err))
		stats.EventsAborted++
		return nil
	}

	var st staging
	for _, row := range rows {
		if err := e.stageRow(ctx, pool, row, &st, stats); err != nil {
			return fmt.Errorf("row %s/%d/%d: %w", row.TxHash, row.LogIndex, row.TokenIndex, err)
		}
	}

	if err := e.commit(ctx, &st); err != nil {
		return fmt.Errorf("commit event %s/%d: %w", first.TxHash, first.LogIndex, err)
	}

	stats.EventsProcessed++
	stats.RowsMaterialized += len(st.records)
	return nil
}

// ensurePool materializes the pool record, retrying discovery once.
func (e *Engine) ensurePool(ctx context.Context, poolID string, block int64) (*domain.Pool, error) {
	pool, err := e.opts.Registry.Ensure(ctx, poolID, block)
	if err == nil {
		return pool, nil
	}
	e.logger.Warn("pool discovery failed, retrying once",
		zap.String("component", "engine"),
		zap.String("pool", poolID),
		zap.Error(err))
	return e.opts.Registry.Ensure(ctx, poolID, block)
}

// stageRow converts one token-index row into its pending writes. Zero
// amounts and malformed rows contribute nothing.
func (e *Engine) stageRow(ctx context.Context, pool *domain.Pool, row *domain.LiquidityChangeEvent, st *staging, stats *Stats) error {
	raw, err := convert.ParseRawAmount(row.RawAmount)
	if err != nil {
		if e.opts.Strict {
			return err
		}
		e.logger.Warn("dropping row with malformed raw amount",
			zap.String("component", "engine"),
			zap.String("txHash", row.TxHash),
			zap.Int("tokenIndex", row.TokenIndex),
			zap.String("rawAmount", row.RawAmount),
			zap.Error(err))
		stats.RowsSkipped++
		return nil
	}
	if raw.IsZero() {
		stats.RowsSkipped++
		return nil
	}

	before, after, swapped := e.opts.Resolver.ResolveRef(pool.ID, row.TokenRef, pool.Coins)
	if after == domain.UnknownTokenAddress && e.opts.Strict {
		return fmt.Errorf("unresolvable token reference %q", row.TokenRef)
	}

	id := idhash.ComputeFlowID(row.TxHash, row.LogIndex, row.TokenIndex)

	existing, stagedIdx, wasStaged := st.staged(id)
	if !wasStaged {
		existing, err = e.opts.FlowStore.GetByID(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("get flow record %s: %w", id, err)
		}
	}
	if existing != nil && e.opts.SkipExisting {
		stats.RowsSkipped++
		return nil
	}

	decimals, err := e.opts.Decimals.Get(ctx, after)
	if err != nil {
		return err
	}

	rate, err := e.opts.RateCache.GetOrCreate(ctx, after, row.BlockNum, e.rateComputeFn(after, row.BlockNum))
	if err != nil {
		return err
	}

	amount, err := convert.Convert(row.RawAmount, decimals, rate.Rate)
	if err != nil {
		return err
	}

	isLP := pool.LPToken != "" && after == pool.LPToken
	if !isLP {
		if lp, ok := e.opts.Registry.LPToken(pool.ID); ok {
			isLP = after == lp
		}
	}

	record := &domain.FlowRecord{
		ID:          id,
		Kind:        row.Kind,
		Provider:    identity.Canonical(row.Provider),
		PoolID:      pool.ID,
		Token:       after,
		TokenIndex:  row.TokenIndex,
		IsLPToken:   isLP,
		AmountRaw:   raw.String(),
		AmountWETH:  amount,
		RateID:      rate.ID,
		BlockNumber: row.BlockNum,
		Timestamp:   row.Timestamp,
		TxHash:      row.TxHash,
	}

	reason := domain.AuditReasonConverted
	if swapped {
		reason = domain.AuditReasonSwapped
	}
	audit := &domain.AuditRow{
		ID:              id,
		Provider:        identity.Canonical(row.Provider),
		TxHash:          row.TxHash,
		TokenBefore:     before,
		TokenAfter:      after,
		AmountRaw:       raw.String(),
		AmountWETHAfter: amount,
		Rate:            rate.Rate,
		Reason:          reason,
	}

	if wasStaged {
		st.records[stagedIdx] = record
		st.audits[stagedIdx] = audit
	} else {
		if st.byID == nil {
			st.byID = make(map[string]int)
		}
		st.byID[id] = len(st.records)
		st.records = append(st.records, record)
		st.audits = append(st.audits, audit)
	}

	// LP-token rows are the pool's own share accounting and carry no
	// economic flow; they materialize but never touch aggregates.
	if isLP {
		return nil
	}

	delta := amount
	if existing != nil {
		// Replay: the record is overwritten, so the aggregate moves by the
		// difference only. Identical content nets to zero.
		if existing.Kind == row.Kind {
			delta = amount.Sub(existing.AmountWETH)
		} else {
			st.deltas = append(st.deltas, aggDelta{
				user:   identity.Canonical(row.Provider),
				kind:   existing.Kind,
				amount: existing.AmountWETH.Neg(),
				block:  row.BlockNum,
			})
		}
	}

	st.deltas = append(st.deltas, aggDelta{
		user:   identity.Canonical(row.Provider),
		kind:   row.Kind,
		amount: delta,
		block:  row.BlockNum,
	})
	return nil
}

// rateComputeFn resolves the conversion rate for (token, block): static table
// first, then the on-chain redemption-rate call, then the default rate 1.
func (e *Engine) rateComputeFn(token string, block int64) rates.ComputeFn {
	return func(ctx context.Context) (decimal.Decimal, string, error) {
		if r, ok := e.opts.RateTable.Rate(token); ok {
			return r, domain.RateSourceTable, nil
		}

		if e.opts.Metadata != nil {
			r, err := e.opts.Metadata.RedemptionRate(ctx, token, block)
			if err == nil {
				return r, domain.RateSourceOnChain, nil
			}
			if e.opts.Strict || !errors.Is(err, metadata.ErrUnavailable) {
				return decimal.Zero, "", err
			}
			e.logger.Warn("rate lookup unavailable, defaulting to 1",
				zap.String("component", "engine"),
				zap.String("token", token),
				zap.Int64("block", block),
				zap.Error(err))
			return decimal.NewFromInt(1), domain.RateSourceFallback, nil
		}

		return decimal.NewFromInt(1), domain.RateSourceFallback, nil
	}
}

// commit persists one event's staged writes: flow records, audit rows, then
// aggregate updates.
func (e *Engine) commit(ctx context.Context, st *staging) error {
	if len(st.records) == 0 {
		return nil
	}

	if err := e.opts.FlowStore.UpsertBulk(ctx, st.records); err != nil {
		return fmt.Errorf("upsert flow records: %w", err)
	}
	if err := e.opts.AuditStore.Append(ctx, st.audits); err != nil {
		return fmt.Errorf("append audit rows: %w", err)
	}

	for _, d := range st.deltas {
		if err := e.applyDelta(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// applyDelta folds one staged contribution into the user's aggregate.
func (e *Engine) applyDelta(ctx context.Context, d aggDelta) error {
	agg, err := e.opts.AggStore.GetByUser(ctx, d.user)
	if errors.Is(err, storage.ErrNotFound) {
		agg = &domain.UserAggregate{User: d.user}
	} else if err != nil {
		return fmt.Errorf("get aggregate %s: %w", d.user, err)
	}

	switch d.kind {
	case domain.FlowDeposit:
		agg.TotalDeposited = agg.TotalDeposited.Add(d.amount)
	case domain.FlowWithdrawal:
		agg.TotalWithdrawn = agg.TotalWithdrawn.Add(d.amount)
	default:
		return fmt.Errorf("unknown flow kind %q", d.kind)
	}
	if d.block > agg.LastUpdatedBlock {
		agg.LastUpdatedBlock = d.block
	}

	if err := e.opts.AggStore.Upsert(ctx, agg); err != nil {
		return fmt.Errorf("upsert aggregate %s: %w", d.user, err)
	}
	return nil
}
