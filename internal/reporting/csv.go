// Package reporting renders the reconstructed ledger as CSV exports: the
// per-row flow ledger, the audit trail, and per-user aggregate positions.
package reporting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/domain"
)

// FlowRow is one row of the flows export, a flow record joined with its
// conversion rate and the per-transaction aggregate for its user.
type FlowRow struct {
	User         string
	TxHash       string
	Token        string
	IsLP         bool
	AmountRaw    string
	AmountWETH   decimal.Decimal
	Rate         decimal.Decimal
	TxAggregated decimal.Decimal
	BlockNumber  int64
	ID           string
}

// RenderFlowsCSV renders flow rows as a CSV string.
func RenderFlowsCSV(rows []FlowRow) string {
	var sb strings.Builder

	sb.WriteString("user,transactionHash,token,isLP,amountRaw,amountWETH,conversionRate,txAggregatedWETH,blockNumber,id\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%d,%s\n",
			r.User,
			r.TxHash,
			r.Token,
			strconv.FormatBool(r.IsLP),
			r.AmountRaw,
			r.AmountWETH.String(),
			r.Rate.String(),
			r.TxAggregated.String(),
			r.BlockNumber,
			r.ID,
		))
	}

	return sb.String()
}

// RenderAuditCSV renders the audit trail as a CSV string.
func RenderAuditCSV(rows []*domain.AuditRow) string {
	var sb strings.Builder

	sb.WriteString("id,provider,transactionHash,tokenBefore,tokenAfter,amountRaw,amountWETHAfter,conversionRate,reason\n")

	for _, r := range rows {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%s,%s,%s\n",
			r.ID,
			r.Provider,
			r.TxHash,
			r.TokenBefore,
			r.TokenAfter,
			r.AmountRaw,
			r.AmountWETHAfter.String(),
			r.Rate.String(),
			r.Reason,
		))
	}

	return sb.String()
}

// RenderAggregatesCSV renders per-user positions as a CSV string.
// remainingWETH is recomputed as the difference, never read from storage.
func RenderAggregatesCSV(aggs []*domain.UserAggregate) string {
	var sb strings.Builder

	sb.WriteString("user,totalDepositedWETH,totalWithdrawnWETH,remainingWETH\n")

	for _, a := range aggs {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s\n",
			a.User,
			a.TotalDeposited.String(),
			a.TotalWithdrawn.String(),
			a.Net().String(),
		))
	}

	return sb.String()
}
