package ethrpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

// Keccak256 returns the keccak-256 hash of data.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// Selector returns the 4-byte function selector for a canonical signature,
// e.g. "coins(uint256)".
func Selector(signature string) string {
	return hex.EncodeToString(Keccak256([]byte(signature))[:4])
}

// EventTopic returns the 0x-prefixed topic0 hash for a canonical event
// signature, e.g. "AddLiquidity(address,uint256[3],uint256[3],uint256,uint256)".
func EventTopic(signature string) string {
	return "0x" + hex.EncodeToString(Keccak256([]byte(signature)))
}

// EncodeCall builds eth_call data: selector plus 32-byte left-padded uint
// arguments. Covers the metadata reads this system performs; it is not a
// general ABI encoder.
func EncodeCall(signature string, args ...int64) string {
	var sb strings.Builder
	sb.WriteString("0x")
	sb.WriteString(Selector(signature))
	for _, a := range args {
		sb.WriteString(fmt.Sprintf("%064x", a))
	}
	return sb.String()
}

// DecodeAddress extracts an address from a 32-byte return word.
func DecodeAddress(ret string) (string, error) {
	word, err := firstWord(ret)
	if err != nil {
		return "", err
	}
	return "0x" + word[24:], nil
}

// DecodeUint64 extracts a small unsigned integer from a 32-byte return word.
func DecodeUint64(ret string) (int64, error) {
	word, err := firstWord(ret)
	if err != nil {
		return 0, err
	}
	return hexToInt64("0x" + word)
}

// DecodeScaledRate extracts a uint256 return word scaled by 10^18 into an
// exact decimal, the convention used by redemption-rate style getters.
func DecodeScaledRate(ret string) (decimal.Decimal, error) {
	word, err := firstWord(ret)
	if err != nil {
		return decimal.Zero, err
	}
	n, ok := new(big.Int).SetString(word, 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("malformed return word %q", word)
	}
	return decimal.NewFromBigInt(n, -18), nil
}

// firstWord validates and returns the first 32-byte return word as bare hex.
func firstWord(ret string) (string, error) {
	h := strings.TrimPrefix(strings.ToLower(ret), "0x")
	if len(h) < 64 {
		return "", fmt.Errorf("return data too short: %d hex chars", len(h))
	}
	return h[:64], nil
}
