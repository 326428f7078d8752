// Package main fetches AddLiquidity/RemoveLiquidity logs for a pool over
// JSON-RPC, decodes them into normalized event rows and writes them as JSON
// for the reconstruction run. With -ws it follows live logs until interrupted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/ethrpc"
	"pool-ledger-lab/internal/ingestion"
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

func main() {
	rpcEndpoint := flag.String("rpc", "", "Ethereum JSON-RPC HTTP endpoint (required)")
	wsEndpoint := flag.String("ws", "", "Websocket endpoint; follow live logs instead of backfilling")
	poolAddr := flag.String("pool", "", "Pool contract address (required)")
	nCoins := flag.Int("ncoins", 2, "Number of coins in the pool's amounts arrays")
	fromBlock := flag.Int64("from", 0, "First block of the backfill range")
	toBlock := flag.Int64("to", 0, "Last block of the backfill range (0 = latest)")
	output := flag.String("output", "events.json", "Output path for normalized events JSON")
	withTimestamps := flag.Bool("timestamps", true, "Resolve block timestamps (one extra call per block)")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	if *rpcEndpoint == "" || *poolAddr == "" {
		fmt.Fprintln(os.Stderr, "-rpc and -pool are required")
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
		logger.Info("signal received, stopping", zap.String("signal", sig.String()))
		cancel()
	}()

	client := ethrpc.NewHTTPClient(*rpcEndpoint)

	var timestamps ingestion.TimestampFn
	if *withTimestamps {
		timestamps = client.BlockTimestamp
	}
	parser := ingestion.NewParser(*nCoins, timestamps, logger)

	var (
		events []*domain.LiquidityChangeEvent
		err    error
	)
	if *wsEndpoint != "" {
		events, err = follow(ctx, *wsEndpoint, *poolAddr, parser, logger)
	} else {
		events, err = backfill(ctx, client, *poolAddr, *fromBlock, *toBlock, parser, logger)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := writeEvents(*output, events); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("events written",
		zap.String("path", *output),
		zap.Int("rows", len(events)))
}

// backfill fetches and decodes the block range in one pass.
func backfill(ctx context.Context, client *ethrpc.HTTPClient, pool string, from, to int64, parser *ingestion.Parser, logger *zap.Logger) ([]*domain.LiquidityChangeEvent, error) {
	if to == 0 {
		latest, err := client.BlockNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest block: %w", err)
		}
		to = latest
	}

	logger.Info("backfilling logs",
		zap.String("pool", pool),
		zap.Int64("from", from),
		zap.Int64("to", to))

	logs, err := client.GetLogs(ctx, ethrpc.LogFilter{
		Address:   pool,
		Topics0:   parser.Topics(),
		FromBlock: from,
		ToBlock:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}

	return parser.ParseLogs(ctx, logs)
}

// follow subscribes to live logs and accumulates rows until the context is
// cancelled.
func follow(ctx context.Context, endpoint, pool string, parser *ingestion.Parser, logger *zap.Logger) ([]*domain.LiquidityChangeEvent, error) {
	ws, err := ethrpc.NewWSClient(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	logCh, err := ws.SubscribeLogs(ctx, ethrpc.LogFilter{
		Address: pool,
		Topics0: parser.Topics(),
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	logger.Info("following live logs", zap.String("pool", pool))

	var events []*domain.LiquidityChangeEvent
	for {
		select {
		case <-ctx.Done():
			return events, nil
		case log, ok := <-logCh:
			if !ok {
				return events, nil
			}
			rows, err := parser.ParseLogs(ctx, []ethrpc.Log{log})
			if err != nil {
				return events, err
			}
			events = append(events, rows...)
			logger.Debug("log decoded",
				zap.String("txHash", log.TxHash),
				zap.Int64("block", log.BlockNumber))
		}
	}
}

// writeEvents serializes events in the normalized JSON row format.
func writeEvents(path string, events []*domain.LiquidityChangeEvent) error {
	ingestion.SortEvents(events)

	rows := make([]eventRow, 0, len(events))
	for _, e := range events {
		rows = append(rows, eventRow{
			Kind:       string(e.Kind),
			Provider:   e.Provider,
			Pool:       e.PoolID,
			TokenRef:   e.TokenRef,
			TokenIndex: e.TokenIndex,
			RawAmount:  e.RawAmount,
			Block:      e.BlockNum,
			Timestamp:  e.Timestamp,
			TxHash:     e.TxHash,
			LogIndex:   e.LogIndex,
		})
	}

	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
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
