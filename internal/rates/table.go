// Package rates supplies conversion rates into the canonical accounting unit:
// a static per-token table with an explicit default of 1, and a block-keyed
// oracle cache that creates each rate record at most once.
package rates

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Table is the static conversion-rate configuration: canonical token identity
// to a fixed decimal rate. Identities not present convert at the default rate 1.
type Table struct {
	rates map[string]decimal.Decimal
}

// NewTable builds a Table from a token -> rate-string map.
// Rate strings must parse as decimals; malformed entries panic at startup,
// since the table is operator-authored configuration.
func NewTable(entries map[string]string) *Table {
	rates := make(map[string]decimal.Decimal, len(entries))
	for token, rate := range entries {
		rates[strings.ToLower(token)] = decimal.RequireFromString(rate)
	}
	return &Table{rates: rates}
}

// Rate returns the configured rate for a token and whether it was present.
// Absent tokens return the default rate 1.
func (t *Table) Rate(token string) (decimal.Decimal, bool) {
	if t != nil {
		if r, ok := t.rates[strings.ToLower(token)]; ok {
			return r, true
		}
	}
	return decimal.NewFromInt(1), false
}
