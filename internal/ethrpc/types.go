// Package ethrpc is a minimal Ethereum JSON-RPC client: contract calls,
// paginated log fetching, and a websocket log subscription. It is the
// transport collaborator for the accounting engine; it performs no
// interpretation of event payloads.
package ethrpc

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrReverted is returned when an eth_call reverts. Metadata providers map
// this to their unavailable outcome.
var ErrReverted = errors.New("execution reverted")

// Log is one EVM event log record.
type Log struct {
	Address     string   // emitting contract address
	Topics      []string // indexed topics, topic0 is the event signature hash
	Data        string   // 0x-prefixed ABI-encoded payload
	BlockNumber int64    // block number
	TxHash      string   // transaction hash
	LogIndex    int      // log index within the block
}

// LogFilter selects logs by contract address and optional topic0 values.
type LogFilter struct {
	Address   string
	Topics0   []string // any-of match on topic0; empty matches all
	FromBlock int64
	ToBlock   int64
}

// hexToInt64 parses a 0x-prefixed hex quantity.
func hexToInt64(s string) (int64, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("malformed hex quantity %q", s)
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("hex quantity %q overflows int64", s)
	}
	return n.Int64(), nil
}

// int64ToHex formats a block number as a 0x-prefixed hex quantity.
func int64ToHex(n int64) string {
	return fmt.Sprintf("0x%x", n)
}
