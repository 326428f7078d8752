// Package convert turns raw on-chain integer amounts into canonical decimal
// amounts. All arithmetic is exact decimal arithmetic; values never pass
// through binary floating point.
package convert

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrParse is returned for malformed numeric input. Callers drop the row
// with a warning and continue the batch.
var ErrParse = errors.New("malformed numeric input")

// Convert computes rawAmount / 10^decimals * rate exactly.
// rawAmount must be a decimal integer string.
func Convert(rawAmount string, decimals int, rate decimal.Decimal) (decimal.Decimal, error) {
	raw, err := ParseRawAmount(rawAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if decimals < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative decimals %d", ErrParse, decimals)
	}
	return raw.Shift(int32(-decimals)).Mul(rate), nil
}

// ParseRawAmount parses a raw integer amount string.
func ParseRawAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrParse)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrParse, s)
	}
	if !d.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: raw amount %q is not an integer", ErrParse, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: raw amount %q is negative", ErrParse, s)
	}
	return d, nil
}

// ToRaw converts a human-readable decimal amount into its raw integer string
// representation using the token's decimals. Used by the manual correction
// injector so corrections enter the pipeline in the same shape as observed
// events.
func ToRaw(amount string, decimals int) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrParse, amount)
	}
	if decimals < 0 {
		return "", fmt.Errorf("%w: negative decimals %d", ErrParse, decimals)
	}
	raw := d.Shift(int32(decimals))
	if !raw.IsInteger() {
		return "", fmt.Errorf("%w: amount %q has more precision than %d decimals", ErrParse, amount, decimals)
	}
	return raw.String(), nil
}
