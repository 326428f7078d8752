package engine

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/identity"
	"pool-ledger-lab/internal/ingestion"
	"pool-ledger-lab/internal/metadata"
	"pool-ledger-lab/internal/metadata/stub"
	"pool-ledger-lab/internal/rates"
	"pool-ledger-lab/internal/registry"
	"pool-ledger-lab/internal/storage/memory"
)

const (
	poolID = "0xa96a65c051bf88b4095ee1f2451c2a9d43f53ae2"
	weth   = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	tokenA = "0xe95a203b1a91a908f9b9ce46459d101078c2c3cb"
	tokenB = "0x9559aaa82d9649c7a7b220e7c461d2e74c9a3593"
	lpTok  = "0x3333333333333333333333333333333333333333"
	user   = "0x1111111111111111111111111111111111111111"
	txHash = "0x00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
)

// harness bundles the engine and its backing stores for assertions.
type harness struct {
	engine   *Engine
	provider *stub.Provider
	flows    *memory.FlowRecordStore
	aggs     *memory.UserAggregateStore
	audits   *memory.AuditStore
	decimals *metadata.DecimalsCache
}

func newHarness(t *testing.T, strict bool) *harness {
	t.Helper()

	provider := stub.NewProvider()
	provider.CoinsByPool[poolID] = []string{weth, tokenA, lpTok}
	for _, token := range []string{weth, tokenA, tokenB, lpTok} {
		provider.DecimalsByToken[token] = 18
	}

	decimals := metadata.NewDecimalsCache(provider, strict, nil)
	reg := registry.New(provider, memory.NewPoolStore(),
		registry.Config{LPTokens: map[string]string{poolID: lpTok}}, nil)

	flows := memory.NewFlowRecordStore()
	aggs := memory.NewUserAggregateStore()
	audits := memory.NewAuditStore()

	eng := New(Options{
		Resolver: identity.NewResolver(identity.Config{
			Swap: identity.SwapPair{A: tokenA, B: tokenB},
		}, nil),
		Decimals:   decimals,
		RateCache:  rates.NewOracleCache(memory.NewOracleRateStore(), nil),
		RateTable:  rates.NewTable(map[string]string{tokenB: "1.08294"}),
		Metadata:   provider,
		Registry:   reg,
		FlowStore:  flows,
		AggStore:   aggs,
		AuditStore: audits,
		Strict:     strict,
	})

	return &harness{
		engine:   eng,
		provider: provider,
		flows:    flows,
		aggs:     aggs,
		audits:   audits,
		decimals: decimals,
	}
}

func depositRow(tokenRef string, tokenIndex int, raw string, block int64, logIndex int) *domain.LiquidityChangeEvent {
	return &domain.LiquidityChangeEvent{
		Kind:       domain.FlowDeposit,
		Provider:   user,
		PoolID:     poolID,
		TokenRef:   tokenRef,
		TokenIndex: tokenIndex,
		RawAmount:  raw,
		BlockNum:   block,
		TxHash:     txHash,
		LogIndex:   logIndex,
	}
}

func TestProcessEvents_ExactConversion(t *testing.T) {
	h := newHarness(t, false)

	stats, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "4993670000000000000", 13000000, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsProcessed)
	assert.Equal(t, 1, stats.RowsMaterialized)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "001122334455-5-0", r.ID)
	assert.True(t, r.AmountWETH.Equal(decimal.RequireFromString("4.99367")),
		"expected exactly 4.99367, got %s", r.AmountWETH)
	assert.Equal(t, weth, r.Token)
	assert.False(t, r.IsLPToken)

	agg, err := h.aggs.GetByUser(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, agg.TotalDeposited.Equal(decimal.RequireFromString("4.99367")))
	assert.True(t, agg.Net().Equal(decimal.RequireFromString("4.99367")))
}

func TestProcessEvents_SwappedIdentityAndRate(t *testing.T) {
	h := newHarness(t, false)

	// Upstream reports tokenA; the true identity is tokenB, whose table rate
	// is 1.08294.
	_, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(tokenA, 1, "1000000000000000000", 13000000, 5),
	})
	require.NoError(t, err)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, tokenB, records[0].Token)
	assert.True(t, records[0].AmountWETH.Equal(decimal.RequireFromString("1.08294")))

	audits, err := h.audits.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, tokenA, audits[0].TokenBefore)
	assert.Equal(t, tokenB, audits[0].TokenAfter)
	assert.Equal(t, domain.AuditReasonSwapped, audits[0].Reason)
	assert.True(t, audits[0].Rate.Equal(decimal.RequireFromString("1.08294")))
}

func TestProcessEvents_IndexReferenceResolvesViaPool(t *testing.T) {
	h := newHarness(t, false)

	// TokenRef "1" points into the pool's coin list at tokenA, which then
	// normalizes to tokenB.
	_, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow("1", 1, "2000000000000000000", 13000000, 5),
	})
	require.NoError(t, err)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, tokenB, records[0].Token)
}

func TestProcessEvents_LPTokenRowsExcludedFromAggregates(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "1000000000000000000", 13000000, 5),
		depositRow(lpTok, 2, "9000000000000000000", 13000000, 5),
	})
	require.NoError(t, err)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2, "LP rows materialize")

	var lpRecord *domain.FlowRecord
	for _, r := range records {
		if r.Token == lpTok {
			lpRecord = r
		}
	}
	require.NotNil(t, lpRecord)
	assert.True(t, lpRecord.IsLPToken)

	agg, err := h.aggs.GetByUser(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, agg.TotalDeposited.Equal(decimal.RequireFromString("1")),
		"LP row contributes nothing, got %s", agg.TotalDeposited)
}

func TestProcessEvents_ZeroAmountIsNoOp(t *testing.T) {
	h := newHarness(t, false)

	stats, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "0", 13000000, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsSkipped)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = h.aggs.GetByUser(context.Background(), user)
	assert.Error(t, err, "no aggregate materialized")
}

func TestProcessEvents_MalformedAmountDroppedBatchContinues(t *testing.T) {
	h := newHarness(t, false)

	stats, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "not-a-number", 13000000, 5),
		depositRow(weth, 0, "1000000000000000000", 13000001, 6),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsSkipped)
	assert.Equal(t, 1, stats.RowsMaterialized)
}

func TestProcessEvents_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t, false)

	events := []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "4993670000000000000", 13000000, 5),
		{
			Kind: domain.FlowWithdrawal, Provider: user, PoolID: poolID,
			TokenRef: weth, TokenIndex: 0, RawAmount: "1000000000000000000",
			BlockNum: 13000001, TxHash: txHash, LogIndex: 9,
		},
	}

	for i := 0; i < 3; i++ {
		_, err := h.engine.ProcessEvents(context.Background(), events)
		require.NoError(t, err)
	}

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	agg, err := h.aggs.GetByUser(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, agg.TotalDeposited.Equal(decimal.RequireFromString("4.99367")),
		"replay must not inflate totals, got %s", agg.TotalDeposited)
	assert.True(t, agg.TotalWithdrawn.Equal(decimal.RequireFromString("1")))
	assert.True(t, agg.Net().Equal(decimal.RequireFromString("3.99367")))
}

func TestProcessEvents_DuplicateRowsWithinOneBatch(t *testing.T) {
	h := newHarness(t, false)

	// An overlapping backfill can feed the same row twice in one batch. The
	// second occurrence must land as an overwrite, not a second flow.
	stats, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "1000000000000000000", 13000000, 5),
		depositRow(weth, 0, "1000000000000000000", 13000000, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsMaterialized)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	agg, err := h.aggs.GetByUser(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, agg.TotalDeposited.Equal(decimal.RequireFromString("1")),
		"duplicate row must not double-count, got %s", agg.TotalDeposited)
}

func TestProcessEvents_DuplicateRowAmountRevisedWithinBatch(t *testing.T) {
	h := newHarness(t, false)

	stats, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "1000000000000000000", 13000000, 5),
		depositRow(weth, 0, "2500000000000000000", 13000000, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsMaterialized)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2500000000000000000", records[0].AmountRaw, "last row wins")

	agg, err := h.aggs.GetByUser(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, agg.TotalDeposited.Equal(decimal.RequireFromString("2.5")),
		"aggregate reflects the revised amount only, got %s", agg.TotalDeposited)
}

func TestProcessEvents_SkipExisting(t *testing.T) {
	h := newHarness(t, false)

	events := []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "1000000000000000000", 13000000, 5),
	}
	_, err := h.engine.ProcessEvents(context.Background(), events)
	require.NoError(t, err)

	opts := h.engine.opts
	opts.SkipExisting = true
	skipper := New(opts)

	stats, err := skipper.ProcessEvents(context.Background(), events)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsSkipped)
	assert.Equal(t, 0, stats.RowsMaterialized)
}

func TestProcessEvents_FatalPoolFailureAbortsEventOnly(t *testing.T) {
	h := newHarness(t, false)

	unknownPool := "0x4444444444444444444444444444444444444444"
	bad := depositRow(weth, 0, "1000000000000000000", 13000000, 2)
	bad.PoolID = unknownPool
	good := depositRow(weth, 0, "1000000000000000000", 13000000, 7)

	stats, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{bad, good})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EventsAborted)
	assert.Equal(t, 1, stats.EventsProcessed)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1, "no partial writes for the aborted event")
	assert.Equal(t, poolID, records[0].PoolID)
}

func TestProcessEvents_StrictModeFailsHard(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow("garbage-ref", 0, "1000000000000000000", 13000000, 5),
	})
	assert.Error(t, err, "unresolvable reference is a hard error in strict mode")
}

func TestProcessEvents_UnknownTokenFallsBackToDefaults(t *testing.T) {
	h := newHarness(t, false)

	// Out-of-range index with no fallback list: the row materializes under
	// the unknown sentinel at rate 1 and decimals 18.
	_, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow("7", 7, "1000000000000000000", 13000000, 5),
	})
	require.NoError(t, err)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.UnknownTokenAddress, records[0].Token)
	assert.True(t, records[0].AmountWETH.Equal(decimal.RequireFromString("1")))
}

func TestProcessEvents_ManualCorrections(t *testing.T) {
	h := newHarness(t, false)

	injector := ingestion.NewInjector(h.decimals, nil)
	events, err := injector.Inject(context.Background(), nil, []domain.Correction{
		{Kind: domain.FlowDeposit, Provider: user, PoolID: poolID, Token: weth,
			Amount: "2.5", BlockNum: 13000000, TxHash: txHash, LogIndex: 1},
		{Kind: domain.FlowDeposit, Provider: user, PoolID: poolID, Token: weth,
			Amount: "0.25", BlockNum: 13000001, TxHash: txHash, LogIndex: 2},
		{Kind: domain.FlowWithdrawal, Provider: user, PoolID: poolID, Token: weth,
			Amount: "1.1", BlockNum: 13000002, TxHash: txHash, LogIndex: 3},
	})
	require.NoError(t, err)

	_, err = h.engine.ProcessEvents(context.Background(), events)
	require.NoError(t, err)

	agg, err := h.aggs.GetByUser(context.Background(), user)
	require.NoError(t, err)
	assert.True(t, agg.TotalDeposited.Equal(decimal.RequireFromString("2.75")))
	assert.True(t, agg.TotalWithdrawn.Equal(decimal.RequireFromString("1.1")))
	assert.True(t, agg.Net().Equal(decimal.RequireFromString("1.65")))
}

func TestProcessEvents_OnChainRateUsedWhenTableSilent(t *testing.T) {
	h := newHarness(t, false)
	h.provider.RatesByToken[weth] = decimal.RequireFromString("1.5")

	_, err := h.engine.ProcessEvents(context.Background(), []*domain.LiquidityChangeEvent{
		depositRow(weth, 0, "2000000000000000000", 13000000, 5),
	})
	require.NoError(t, err)

	records, err := h.flows.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].AmountWETH.Equal(decimal.RequireFromString("3")))
}
