package ingestion

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/ethrpc"
)

const parserProvider = "0x2222222222222222222222222222222222222222"

// liquidityLog builds a 2-coin AddLiquidity/RemoveLiquidity log with the
// given amounts, padding the payload with the fee words real events carry.
func liquidityLog(topic0 string, amounts [2]uint64, block int64, logIndex int) ethrpc.Log {
	data := "0x"
	for _, a := range amounts {
		data += fmt.Sprintf("%064x", a)
	}
	data += fmt.Sprintf("%064x%064x", 0, 0) // fees

	return ethrpc.Log{
		Address: corrPool,
		Topics: []string{
			topic0,
			"0x000000000000000000000000" + parserProvider[2:],
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      "0xdeadbeef",
		LogIndex:    logIndex,
	}
}

func TestParseLogs_AddLiquidity(t *testing.T) {
	p := NewParser(2, nil, nil)

	logs := []ethrpc.Log{
		liquidityLog(p.Topics()[0], [2]uint64{4993670000000000000, 0}, 13000000, 5),
	}

	events, err := p.ParseLogs(context.Background(), logs)
	require.NoError(t, err)
	require.Len(t, events, 2, "one row per token index")

	assert.Equal(t, domain.FlowDeposit, events[0].Kind)
	assert.Equal(t, parserProvider, events[0].Provider)
	assert.Equal(t, corrPool, events[0].PoolID)
	assert.Equal(t, "0", events[0].TokenRef)
	assert.Equal(t, 0, events[0].TokenIndex)
	assert.Equal(t, "4993670000000000000", events[0].RawAmount)
	assert.Equal(t, int64(13000000), events[0].BlockNum)
	assert.Equal(t, 5, events[0].LogIndex)

	assert.Equal(t, "1", events[1].TokenRef)
	assert.Equal(t, "0", events[1].RawAmount, "zero amounts survive parsing; the engine skips them")
}

func TestParseLogs_RemoveLiquidity(t *testing.T) {
	p := NewParser(2, nil, nil)

	logs := []ethrpc.Log{
		liquidityLog(p.Topics()[1], [2]uint64{0, 7000000}, 13000001, 2),
	}

	events, err := p.ParseLogs(context.Background(), logs)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.FlowWithdrawal, events[0].Kind)
}

func TestParseLogs_DropsUnknownTopic(t *testing.T) {
	p := NewParser(2, nil, nil)

	logs := []ethrpc.Log{
		liquidityLog("0x"+fmt.Sprintf("%064x", 1), [2]uint64{1, 2}, 100, 0),
		liquidityLog(p.Topics()[0], [2]uint64{1, 2}, 100, 1),
	}

	events, err := p.ParseLogs(context.Background(), logs)
	require.NoError(t, err)
	assert.Len(t, events, 2, "unknown-topic log dropped, decodable log kept")
}

func TestParseLogs_DropsShortPayload(t *testing.T) {
	p := NewParser(2, nil, nil)

	log := liquidityLog(p.Topics()[0], [2]uint64{1, 2}, 100, 0)
	log.Data = "0x" + fmt.Sprintf("%064x", 1) // one word, two coins expected

	events, err := p.ParseLogs(context.Background(), []ethrpc.Log{log})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseLogs_TimestampsMemoized(t *testing.T) {
	var calls int
	fn := func(_ context.Context, block int64) (int64, error) {
		calls++
		return 1700000000 + block, nil
	}

	p := NewParser(2, fn, nil)
	logs := []ethrpc.Log{
		liquidityLog(p.Topics()[0], [2]uint64{1, 0}, 100, 0),
		liquidityLog(p.Topics()[1], [2]uint64{0, 2}, 100, 1),
	}

	events, err := p.ParseLogs(context.Background(), logs)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, int64(1700000100), events[0].Timestamp)
	assert.Equal(t, 1, calls, "one lookup per block")
}
