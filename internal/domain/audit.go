package domain

import "github.com/shopspring/decimal"

// Audit reason tags. When both identity normalization and rate conversion
// apply to a row, AuditReasonSwapped takes labeling precedence.
const (
	AuditReasonSwapped   = "swapped-token"
	AuditReasonConverted = "conversion-applied"
)

// AuditRow records the corrections applied to one materialized flow row.
type AuditRow struct {
	ID              string          // flow record id
	Provider        string          // user address
	TxHash          string          // transaction hash
	TokenBefore     string          // token identity as reported upstream
	TokenAfter      string          // token identity after normalization
	AmountRaw       string          // raw integer amount
	AmountWETHAfter decimal.Decimal // canonical amount after conversion
	Rate            decimal.Decimal // conversion rate applied
	Reason          string          // single reason tag
}
