// Package main runs the ledger reconstruction: it loads normalized events and
// operator corrections, runs the accounting pass and writes the CSV exports.
// Stores are in-memory by default; postgres, clickhouse and redis backends
// are selected per DSN flag.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/engine"
	"pool-ledger-lab/internal/ethrpc"
	"pool-ledger-lab/internal/identity"
	"pool-ledger-lab/internal/ingestion"
	"pool-ledger-lab/internal/metadata"
	metaeth "pool-ledger-lab/internal/metadata/eth"
	"pool-ledger-lab/internal/metadata/stub"
	"pool-ledger-lab/internal/rates"
	"pool-ledger-lab/internal/registry"
	"pool-ledger-lab/internal/reporting"
	"pool-ledger-lab/internal/storage"
	chstore "pool-ledger-lab/internal/storage/clickhouse"
	"pool-ledger-lab/internal/storage/memory"
	"pool-ledger-lab/internal/storage/migrations"
	"pool-ledger-lab/internal/storage/postgres"
	redisstore "pool-ledger-lab/internal/storage/redis"
)

// eventRow is the JSON form of one normalized input row.
type eventRow struct {
	Kind       string `json:"kind"`
	Provider   string `json:"provider"`
	Pool       string `json:"pool"`
	TokenRef   string `json:"tokenRef"`
	TokenIndex int    `json:"tokenIndex"`
	RawAmount  string `json:"rawAmount"`
	Block      int64  `json:"blockNumber"`
	Timestamp  int64  `json:"timestamp"`
	TxHash     string `json:"transactionHash"`
	LogIndex   int    `json:"logIndex"`
}

// correctionRow is the JSON form of one operator correction.
type correctionRow struct {
	Kind      string `json:"kind"`
	Provider  string `json:"provider"`
	Pool      string `json:"pool"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	Block     int64  `json:"blockNumber"`
	Timestamp int64  `json:"timestamp"`
	TxHash    string `json:"transactionHash"`
	LogIndex  int    `json:"logIndex"`
}

// stubMetadata is the JSON form of the offline metadata provider.
type stubMetadata struct {
	DecimalsByToken map[string]int      `json:"decimalsByToken"`
	CoinsByPool     map[string][]string `json:"coinsByPool"`
	RatesByToken    map[string]string   `json:"ratesByToken"`
}

func main() {
	eventsPath := flag.String("events", "", "Path to normalized events JSON (required)")
	correctionsPath := flag.String("corrections", "", "Path to manual corrections JSON")
	metadataPath := flag.String("metadata", "", "Path to offline metadata JSON (used when -rpc is not set)")
	ratesPath := flag.String("rates", "", "Path to static conversion-rate table JSON (token -> rate string)")
	fallbackPath := flag.String("fallback-coins", "", "Path to per-pool fallback coin lists JSON")
	rpcEndpoint := flag.String("rpc", "", "Ethereum JSON-RPC endpoint for on-chain metadata")
	swapA := flag.String("swap-a", "", "First address of the swapped token pair")
	swapB := flag.String("swap-b", "", "Second address of the swapped token pair")
	lpPool := flag.String("lp-pool", "", "Pool id the -lp-token flag applies to")
	lpToken := flag.String("lp-token", "", "The pool's own share token address")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres DSN for flow/pool/aggregate stores (memory when empty)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN for the audit trail (memory when empty)")
	redisAddr := flag.String("redis-addr", "", "Redis address for the shared rate store (memory when empty)")
	outputDir := flag.String("output-dir", "out", "Output directory for CSV exports")
	overwrite := flag.Bool("overwrite-pools", false, "Wholesale-replace existing pool records on discovery")
	verifyPools := flag.Bool("verify-pools", false, "Re-probe pool records after the run and replace on coin-count mismatch")
	strict := flag.Bool("strict", false, "Turn every metadata and rate fallback into a hard error")
	skipExisting := flag.Bool("skip-existing", false, "Skip rows whose flow record already exists")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	if *eventsPath == "" {
		fmt.Fprintln(os.Stderr, "-events is required")
		os.Exit(1)
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, cancelling", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, logger, runConfig{
		eventsPath:      *eventsPath,
		correctionsPath: *correctionsPath,
		metadataPath:    *metadataPath,
		ratesPath:       *ratesPath,
		fallbackPath:    *fallbackPath,
		rpcEndpoint:     *rpcEndpoint,
		swapA:           *swapA,
		swapB:           *swapB,
		lpPool:          *lpPool,
		lpToken:         *lpToken,
		postgresDSN:     *postgresDSN,
		clickhouseDSN:   *clickhouseDSN,
		redisAddr:       *redisAddr,
		outputDir:       *outputDir,
		overwrite:       *overwrite,
		verifyPools:     *verifyPools,
		strict:          *strict,
		skipExisting:    *skipExisting,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runConfig struct {
	eventsPath      string
	correctionsPath string
	metadataPath    string
	ratesPath       string
	fallbackPath    string
	rpcEndpoint     string
	swapA           string
	swapB           string
	lpPool          string
	lpToken         string
	postgresDSN     string
	clickhouseDSN   string
	redisAddr       string
	outputDir       string
	overwrite       bool
	verifyPools     bool
	strict          bool
	skipExisting    bool
}

// prefetchWorkers bounds the concurrent decimals lookups before the run.
const prefetchWorkers = 4

func run(ctx context.Context, logger *zap.Logger, cfg runConfig) error {
	events, err := loadEvents(cfg.eventsPath)
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	stores, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	var fallbackCoins map[string][]string
	if cfg.fallbackPath != "" {
		if err := loadJSON(cfg.fallbackPath, &fallbackCoins); err != nil {
			return err
		}
	}

	var rateTable *rates.Table
	if cfg.ratesPath != "" {
		var entries map[string]string
		if err := loadJSON(cfg.ratesPath, &entries); err != nil {
			return err
		}
		rateTable = rates.NewTable(entries)
	}

	lpTokens := map[string]string{}
	if cfg.lpPool != "" && cfg.lpToken != "" {
		lpTokens[cfg.lpPool] = cfg.lpToken
	}

	decimals := metadata.NewDecimalsCache(provider, cfg.strict, logger)
	reg := registry.New(provider, stores.pools, registry.Config{
		Overwrite: cfg.overwrite,
		LPTokens:  lpTokens,
	}, logger)
	resolver := identity.NewResolver(identity.Config{
		Swap:          identity.SwapPair{A: cfg.swapA, B: cfg.swapB},
		FallbackCoins: fallbackCoins,
	}, logger)

	var corrections []domain.Correction
	if cfg.correctionsPath != "" {
		if corrections, err = loadCorrections(cfg.correctionsPath); err != nil {
			return err
		}
	}

	// Warm the decimals cache for every token the run will touch before the
	// single-writer pass starts.
	tokens := collectTokens(resolver, events, corrections, fallbackCoins)
	if err := decimals.Prefetch(ctx, tokens, prefetchWorkers); err != nil {
		return fmt.Errorf("prefetch decimals: %w", err)
	}
	logger.Info("decimals prefetched", zap.Int("tokens", len(tokens)))

	if len(corrections) > 0 {
		injector := ingestion.NewInjector(decimals, logger)
		if events, err = injector.Inject(ctx, events, corrections); err != nil {
			return fmt.Errorf("inject corrections: %w", err)
		}
		logger.Info("corrections injected", zap.Int("count", len(corrections)))
	}

	eng := engine.New(engine.Options{
		Resolver:     resolver,
		Decimals:     decimals,
		RateCache:    rates.NewOracleCache(stores.rates, logger),
		RateTable:    rateTable,
		Metadata:     provider,
		Registry:     reg,
		FlowStore:    stores.flows,
		AggStore:     stores.aggs,
		AuditStore:   stores.audits,
		Strict:       cfg.strict,
		SkipExisting: cfg.skipExisting,
		Logger:       logger,
	})

	stats, err := eng.ProcessEvents(ctx, events)
	if err != nil {
		return fmt.Errorf("accounting pass: %w", err)
	}
	logger.Info("accounting pass complete",
		zap.Int("eventsProcessed", stats.EventsProcessed),
		zap.Int("eventsAborted", stats.EventsAborted),
		zap.Int("rowsMaterialized", stats.RowsMaterialized),
		zap.Int("rowsSkipped", stats.RowsSkipped))

	if cfg.verifyPools {
		verifyPools(ctx, reg, events, logger)
	}

	if err := os.MkdirAll(cfg.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	gen := reporting.NewGenerator(stores.flows, stores.aggs, stores.audits, stores.rates)
	if err := gen.WriteAll(ctx, cfg.outputDir); err != nil {
		return err
	}
	logger.Info("exports written", zap.String("dir", cfg.outputDir))
	return nil
}

// collectTokens gathers the distinct token identities a run will touch:
// normalized hex token references, correction tokens and fallback coins.
// Positional references resolve against pool coins only during the pass.
func collectTokens(resolver *identity.Resolver, events []*domain.LiquidityChangeEvent, corrections []domain.Correction, fallbackCoins map[string][]string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	add := func(addr string) {
		addr = identity.Canonical(addr)
		if !identity.IsHexAddress(addr) {
			return
		}
		_, addr, _ = resolver.Normalize(addr)
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		tokens = append(tokens, addr)
	}

	for _, e := range events {
		add(e.TokenRef)
	}
	for _, c := range corrections {
		add(c.Token)
	}
	for _, coins := range fallbackCoins {
		for _, coin := range coins {
			add(coin)
		}
	}
	return tokens
}

// verifyPools re-probes every pool the run touched and replaces records whose
// coin count drifted from the fresh discovery.
func verifyPools(ctx context.Context, reg *registry.Registry, events []*domain.LiquidityChangeEvent, logger *zap.Logger) {
	seen := make(map[string]struct{})
	for _, e := range events {
		poolID := identity.Canonical(e.PoolID)
		if _, dup := seen[poolID]; dup {
			continue
		}
		seen[poolID] = struct{}{}

		_, replaced, err := reg.Verify(ctx, poolID)
		if err != nil {
			logger.Warn("pool verification failed",
				zap.String("pool", poolID),
				zap.Error(err))
			continue
		}
		if replaced {
			logger.Info("pool record corrected", zap.String("pool", poolID))
		}
	}
}

// storeSet bundles the selected storage backends.
type storeSet struct {
	flows  storage.FlowRecordStore
	pools  storage.PoolStore
	rates  storage.OracleRateStore
	aggs   storage.UserAggregateStore
	audits storage.AuditStore
}

// buildStores selects backends per DSN flag, defaulting to memory.
func buildStores(ctx context.Context, cfg runConfig) (*storeSet, func(), error) {
	stores := &storeSet{
		flows:  memory.NewFlowRecordStore(),
		pools:  memory.NewPoolStore(),
		rates:  memory.NewOracleRateStore(),
		aggs:   memory.NewUserAggregateStore(),
		audits: memory.NewAuditStore(),
	}
	var closers []func()

	if cfg.postgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		stores.flows = postgres.NewFlowRecordStore(pool)
		stores.pools = postgres.NewPoolStore(pool)
		stores.rates = postgres.NewOracleRateStore(pool)
		stores.aggs = postgres.NewUserAggregateStore(pool)
		closers = append(closers, pool.Close)
	}

	if cfg.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.clickhouseDSN)
		if err != nil {
			return nil, nil, err
		}
		stores.audits = chstore.NewAuditStore(conn)
		closers = append(closers, func() { conn.Close() })
	}

	if cfg.redisAddr != "" {
		rs := redisstore.NewOracleRateStore(cfg.redisAddr, "", 0)
		stores.rates = rs
		closers = append(closers, func() { rs.Close() })
	}

	return stores, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// buildProvider returns the on-chain provider when an RPC endpoint is set,
// otherwise the offline stub fed from the metadata file.
func buildProvider(cfg runConfig) (metadata.Provider, error) {
	if cfg.rpcEndpoint != "" {
		return metaeth.NewProvider(ethrpc.NewHTTPClient(cfg.rpcEndpoint)), nil
	}

	provider := stub.NewProvider()
	if cfg.metadataPath != "" {
		var meta stubMetadata
		if err := loadJSON(cfg.metadataPath, &meta); err != nil {
			return nil, err
		}
		provider.DecimalsByToken = meta.DecimalsByToken
		provider.CoinsByPool = meta.CoinsByPool
		for token, rate := range meta.RatesByToken {
			r, err := decimal.NewFromString(rate)
			if err != nil {
				return nil, fmt.Errorf("metadata rate for %s: %w", token, err)
			}
			provider.RatesByToken[token] = r
		}
	}
	return provider, nil
}

func loadEvents(path string) ([]*domain.LiquidityChangeEvent, error) {
	var rows []eventRow
	if err := loadJSON(path, &rows); err != nil {
		return nil, err
	}

	events := make([]*domain.LiquidityChangeEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, &domain.LiquidityChangeEvent{
			Kind:       domain.FlowKind(r.Kind),
			Provider:   r.Provider,
			PoolID:     r.Pool,
			TokenRef:   r.TokenRef,
			TokenIndex: r.TokenIndex,
			RawAmount:  r.RawAmount,
			BlockNum:   r.Block,
			Timestamp:  r.Timestamp,
			TxHash:     r.TxHash,
			LogIndex:   r.LogIndex,
		})
	}
	return events, nil
}

func loadCorrections(path string) ([]domain.Correction, error) {
	var rows []correctionRow
	if err := loadJSON(path, &rows); err != nil {
		return nil, err
	}

	corrections := make([]domain.Correction, 0, len(rows))
	for _, r := range rows {
		corrections = append(corrections, domain.Correction{
			Kind:      domain.FlowKind(r.Kind),
			Provider:  r.Provider,
			PoolID:    r.Pool,
			Token:     r.Token,
			Amount:    r.Amount,
			BlockNum:  r.Block,
			Timestamp: r.Timestamp,
			TxHash:    r.TxHash,
			LogIndex:  r.LogIndex,
		})
	}
	return corrections, nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func newLogger(verbose bool) *zap.Logger {
	if verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
