package reporting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// Generator produces CSV exports from stored data.
type Generator struct {
	flowStore  storage.FlowRecordStore
	aggStore   storage.UserAggregateStore
	auditStore storage.AuditStore
	rateStore  storage.OracleRateStore
}

// NewGenerator creates a report generator.
func NewGenerator(
	flowStore storage.FlowRecordStore,
	aggStore storage.UserAggregateStore,
	auditStore storage.AuditStore,
	rateStore storage.OracleRateStore,
) *Generator {
	return &Generator{
		flowStore:  flowStore,
		aggStore:   aggStore,
		auditStore: auditStore,
		rateStore:  rateStore,
	}
}

// GenerateFlowsCSV renders the flow ledger. Rows arrive in store order
// (block_number, tx_hash, id); the per-transaction aggregate sums the user's
// non-LP rows sharing a transaction key, which is the tx hash or the row id
// for synthetic rows without one.
func (g *Generator) GenerateFlowsCSV(ctx context.Context) (string, error) {
	records, err := g.flowStore.GetAll(ctx)
	if err != nil {
		return "", fmt.Errorf("load flow records: %w", err)
	}

	type txGroup struct {
		user string
		key  string
	}
	sums := make(map[txGroup]decimal.Decimal, len(records))
	for _, r := range records {
		if r.IsLPToken {
			continue
		}
		k := txGroup{r.Provider, txKey(r)}
		sums[k] = sums[k].Add(r.AmountWETH)
	}

	rows := make([]FlowRow, 0, len(records))
	for _, r := range records {
		rate, err := g.rateOf(ctx, r.RateID)
		if err != nil {
			return "", err
		}
		rows = append(rows, FlowRow{
			User:         r.Provider,
			TxHash:       r.TxHash,
			Token:        r.Token,
			IsLP:         r.IsLPToken,
			AmountRaw:    r.AmountRaw,
			AmountWETH:   r.AmountWETH,
			Rate:         rate,
			TxAggregated: sums[txGroup{r.Provider, txKey(r)}],
			BlockNumber:  r.BlockNumber,
			ID:           r.ID,
		})
	}

	return RenderFlowsCSV(rows), nil
}

// GenerateAuditCSV renders the audit trail in id order.
func (g *Generator) GenerateAuditCSV(ctx context.Context) (string, error) {
	rows, err := g.auditStore.GetAll(ctx)
	if err != nil {
		return "", fmt.Errorf("load audit rows: %w", err)
	}
	return RenderAuditCSV(rows), nil
}

// GenerateAggregatesCSV renders per-user positions in user order.
func (g *Generator) GenerateAggregatesCSV(ctx context.Context) (string, error) {
	aggs, err := g.aggStore.GetAll(ctx)
	if err != nil {
		return "", fmt.Errorf("load aggregates: %w", err)
	}
	return RenderAggregatesCSV(aggs), nil
}

// WriteAll writes the three exports into dir as flows.csv, audit.csv and
// aggregates.csv.
func (g *Generator) WriteAll(ctx context.Context, dir string) error {
	exports := []struct {
		name     string
		generate func(context.Context) (string, error)
	}{
		{"flows.csv", g.GenerateFlowsCSV},
		{"audit.csv", g.GenerateAuditCSV},
		{"aggregates.csv", g.GenerateAggregatesCSV},
	}

	for _, e := range exports {
		content, err := e.generate(ctx)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, e.name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

// txKey groups a record's contribution to per-transaction sums.
func txKey(r *domain.FlowRecord) string {
	if r.TxHash != "" {
		return r.TxHash
	}
	return r.ID
}

// rateOf resolves a rate record id to its rate, defaulting to 1 for rows
// whose record is absent.
func (g *Generator) rateOf(ctx context.Context, rateID string) (decimal.Decimal, error) {
	if rateID == "" {
		return decimal.NewFromInt(1), nil
	}
	record, err := g.rateStore.Get(ctx, rateID)
	if errors.Is(err, storage.ErrNotFound) {
		return decimal.NewFromInt(1), nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load rate %s: %w", rateID, err)
	}
	return record.Rate, nil
}
