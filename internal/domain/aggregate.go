package domain

import "github.com/shopspring/decimal"

// UserAggregate tracks cumulative economic flow per user. Totals are
// monotonically non-decreasing; the net position is always recomputed as a
// difference rather than stored, so it cannot drift.
type UserAggregate struct {
	User             string          // user address
	TotalDeposited   decimal.Decimal // cumulative canonical deposits
	TotalWithdrawn   decimal.Decimal // cumulative canonical withdrawals
	LastUpdatedBlock int64           // block of the most recent contributing row
}

// Net returns totalDeposited - totalWithdrawn.
func (a *UserAggregate) Net() decimal.Decimal {
	return a.TotalDeposited.Sub(a.TotalWithdrawn)
}
