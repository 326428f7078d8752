package ingestion

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/ethrpc"
)

// TimestampFn resolves a block number to its unix timestamp.
// ethrpc.Client's BlockTimestamp satisfies it.
type TimestampFn func(ctx context.Context, blockNumber int64) (int64, error)

// Parser decodes AddLiquidity/RemoveLiquidity event logs into normalized
// input rows, one row per token index of the event's amounts array. The
// amounts arrays are fixed-size, so the topic hashes depend on the pool's
// coin count.
type Parser struct {
	nCoins      int
	addTopic    string
	removeTopic string
	timestamps  TimestampFn
	logger      *zap.Logger

	// tsCache memoizes block timestamps within one batch
	tsCache map[int64]int64
}

// NewParser creates a Parser for pools with nCoins coins. timestamps may be
// nil, leaving event timestamps zero. A nil logger defaults to zap.NewNop().
func NewParser(nCoins int, timestamps TimestampFn, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		nCoins: nCoins,
		addTopic: ethrpc.EventTopic(fmt.Sprintf(
			"AddLiquidity(address,uint256[%d],uint256[%d],uint256,uint256)", nCoins, nCoins)),
		removeTopic: ethrpc.EventTopic(fmt.Sprintf(
			"RemoveLiquidity(address,uint256[%d],uint256[%d],uint256)", nCoins, nCoins)),
		timestamps: timestamps,
		logger:     logger,
		tsCache:    make(map[int64]int64),
	}
}

// Topics returns the topic0 hashes the parser understands, for use as a log
// subscription filter.
func (p *Parser) Topics() []string {
	return []string{p.addTopic, p.removeTopic}
}

// ParseLogs decodes logs into ordered event rows. Logs with unknown topics
// or malformed payloads are dropped with a warning.
func (p *Parser) ParseLogs(ctx context.Context, logs []ethrpc.Log) ([]*domain.LiquidityChangeEvent, error) {
	var events []*domain.LiquidityChangeEvent

	for _, log := range logs {
		rows, err := p.parseLog(ctx, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("dropping undecodable log",
				zap.String("component", "ingestion"),
				zap.String("txHash", log.TxHash),
				zap.Int("logIndex", log.LogIndex),
				zap.Error(err))
			continue
		}
		events = append(events, rows...)
	}

	SortEvents(events)
	return events, nil
}

// parseLog decodes one log into per-token-index rows.
func (p *Parser) parseLog(ctx context.Context, log ethrpc.Log) ([]*domain.LiquidityChangeEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("expected 2 topics, got %d", len(log.Topics))
	}

	var kind domain.FlowKind
	switch strings.ToLower(log.Topics[0]) {
	case p.addTopic:
		kind = domain.FlowDeposit
	case p.removeTopic:
		kind = domain.FlowWithdrawal
	default:
		return nil, fmt.Errorf("unknown topic %s", log.Topics[0])
	}

	provider, err := topicAddress(log.Topics[1])
	if err != nil {
		return nil, fmt.Errorf("provider topic: %w", err)
	}

	ts, err := p.blockTimestamp(ctx, log.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("block %d timestamp: %w", log.BlockNumber, err)
	}

	rows := make([]*domain.LiquidityChangeEvent, 0, p.nCoins)
	for i := 0; i < p.nCoins; i++ {
		amount, err := dataWord(log.Data, i)
		if err != nil {
			return nil, fmt.Errorf("amounts[%d]: %w", i, err)
		}
		rows = append(rows, &domain.LiquidityChangeEvent{
			Kind:       kind,
			Provider:   provider,
			PoolID:     log.Address,
			TokenRef:   strconv.Itoa(i),
			TokenIndex: i,
			RawAmount:  amount.String(),
			BlockNum:   log.BlockNumber,
			Timestamp:  ts,
			TxHash:     log.TxHash,
			LogIndex:   log.LogIndex,
		})
	}
	return rows, nil
}

// blockTimestamp memoizes timestamp lookups within the batch.
func (p *Parser) blockTimestamp(ctx context.Context, block int64) (int64, error) {
	if p.timestamps == nil {
		return 0, nil
	}
	if ts, ok := p.tsCache[block]; ok {
		return ts, nil
	}
	ts, err := p.timestamps(ctx, block)
	if err != nil {
		return 0, err
	}
	p.tsCache[block] = ts
	return ts, nil
}

// topicAddress extracts the address from a 32-byte indexed topic.
func topicAddress(topic string) (string, error) {
	h := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(h) != 64 {
		return "", fmt.Errorf("malformed topic %q", topic)
	}
	return "0x" + h[24:], nil
}

// dataWord returns the i-th 32-byte word of the log payload as an integer.
func dataWord(data string, i int) (*big.Int, error) {
	h := strings.TrimPrefix(strings.ToLower(data), "0x")
	if len(h) < (i+1)*64 {
		return nil, fmt.Errorf("payload too short for word %d", i)
	}
	word := h[i*64 : (i+1)*64]
	n, ok := new(big.Int).SetString(word, 16)
	if !ok {
		return nil, fmt.Errorf("malformed word %q", word)
	}
	return n, nil
}
