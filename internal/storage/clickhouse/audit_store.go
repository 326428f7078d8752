package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// AuditStore implements storage.AuditStore using ClickHouse. The backing
// table is a ReplacingMergeTree keyed by row id, so re-appending an id
// observed before overwrites the previous row after merges; reads use FINAL.
type AuditStore struct {
	conn *Conn
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(conn *Conn) *AuditStore {
	return &AuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

// Append adds audit rows. Amounts and rates travel as strings to stay exact.
func (s *AuditStore) Append(ctx context.Context, rows []*domain.AuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO audit_rows (
			id, provider, tx_hash, token_before, token_after,
			amount_raw, amount_weth_after, rate, reason
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.ID, r.Provider, r.TxHash, r.TokenBefore, r.TokenAfter,
			r.AmountRaw, r.AmountWETHAfter.String(), r.Rate.String(), r.Reason,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetAll retrieves all audit rows ordered by id.
func (s *AuditStore) GetAll(ctx context.Context) ([]*domain.AuditRow, error) {
	query := `
		SELECT id, provider, tx_hash, token_before, token_after,
			amount_raw, amount_weth_after, rate, reason
		FROM audit_rows FINAL
		ORDER BY id ASC
	`

	rows, err := s.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all audit rows: %w", err)
	}
	defer rows.Close()

	var result []*domain.AuditRow
	for rows.Next() {
		var (
			r            domain.AuditRow
			amount, rate string
		)
		err := rows.Scan(
			&r.ID, &r.Provider, &r.TxHash, &r.TokenBefore, &r.TokenAfter,
			&r.AmountRaw, &amount, &rate, &r.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if r.AmountWETHAfter, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount_weth_after %q: %w", amount, err)
		}
		if r.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse rate %q: %w", rate, err)
		}
		result = append(result, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return result, nil
}
