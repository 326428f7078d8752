package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// FlowRecordStore implements storage.FlowRecordStore using PostgreSQL.
type FlowRecordStore struct {
	pool *Pool
}

// NewFlowRecordStore creates a new FlowRecordStore.
func NewFlowRecordStore(pool *Pool) *FlowRecordStore {
	return &FlowRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FlowRecordStore = (*FlowRecordStore)(nil)

const upsertFlowRecordQuery = `
	INSERT INTO flow_records (
		id, kind, provider, pool_id, token, token_index, is_lp_token,
		amount_raw, amount_weth, rate_id, block_number, timestamp, tx_hash
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		kind = EXCLUDED.kind,
		provider = EXCLUDED.provider,
		pool_id = EXCLUDED.pool_id,
		token = EXCLUDED.token,
		token_index = EXCLUDED.token_index,
		is_lp_token = EXCLUDED.is_lp_token,
		amount_raw = EXCLUDED.amount_raw,
		amount_weth = EXCLUDED.amount_weth,
		rate_id = EXCLUDED.rate_id,
		block_number = EXCLUDED.block_number,
		timestamp = EXCLUDED.timestamp,
		tx_hash = EXCLUDED.tx_hash
`

// Upsert creates or wholesale-overwrites the record with its id.
func (s *FlowRecordStore) Upsert(ctx context.Context, r *domain.FlowRecord) error {
	_, err := s.pool.Exec(ctx, upsertFlowRecordQuery, flowRecordArgs(r)...)
	if err != nil {
		return fmt.Errorf("upsert flow record: %w", err)
	}
	return nil
}

// UpsertBulk applies multiple upserts atomically.
func (s *FlowRecordStore) UpsertBulk(ctx context.Context, records []*domain.FlowRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		if _, err := tx.Exec(ctx, upsertFlowRecordQuery, flowRecordArgs(r)...); err != nil {
			return fmt.Errorf("upsert flow record in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectFlowRecordColumns = `
	id, kind, provider, pool_id, token, token_index, is_lp_token,
	amount_raw, amount_weth::text, rate_id, block_number, timestamp, tx_hash
`

// GetByID retrieves a record by its id.
func (s *FlowRecordStore) GetByID(ctx context.Context, id string) (*domain.FlowRecord, error) {
	query := `SELECT ` + selectFlowRecordColumns + ` FROM flow_records WHERE id = $1`

	r, err := scanFlowRecord(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get flow record by id: %w", err)
	}
	return r, nil
}

// GetAll retrieves all records ordered by (block_number, tx_hash, id).
func (s *FlowRecordStore) GetAll(ctx context.Context) ([]*domain.FlowRecord, error) {
	query := `SELECT ` + selectFlowRecordColumns + ` FROM flow_records
		ORDER BY block_number ASC, tx_hash ASC, id ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all flow records: %w", err)
	}
	defer rows.Close()

	return scanFlowRecords(rows)
}

// GetByProvider retrieves all records for a user, same ordering as GetAll.
func (s *FlowRecordStore) GetByProvider(ctx context.Context, provider string) ([]*domain.FlowRecord, error) {
	query := `SELECT ` + selectFlowRecordColumns + ` FROM flow_records
		WHERE provider = $1
		ORDER BY block_number ASC, tx_hash ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, provider)
	if err != nil {
		return nil, fmt.Errorf("get flow records by provider: %w", err)
	}
	defer rows.Close()

	return scanFlowRecords(rows)
}

// flowRecordArgs orders a record's fields for the upsert query.
func flowRecordArgs(r *domain.FlowRecord) []interface{} {
	return []interface{}{
		r.ID,
		string(r.Kind),
		r.Provider,
		r.PoolID,
		r.Token,
		r.TokenIndex,
		r.IsLPToken,
		r.AmountRaw,
		r.AmountWETH.String(),
		r.RateID,
		r.BlockNumber,
		r.Timestamp,
		r.TxHash,
	}
}

// scanFlowRecord scans one row. Canonical amounts travel as text so they
// never pass through binary floating point.
func scanFlowRecord(row pgx.Row) (*domain.FlowRecord, error) {
	var (
		r      domain.FlowRecord
		kind   string
		amount string
	)
	err := row.Scan(
		&r.ID, &kind, &r.Provider, &r.PoolID, &r.Token, &r.TokenIndex,
		&r.IsLPToken, &r.AmountRaw, &amount, &r.RateID, &r.BlockNumber,
		&r.Timestamp, &r.TxHash,
	)
	if err != nil {
		return nil, err
	}
	r.Kind = domain.FlowKind(kind)
	r.AmountWETH, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount_weth %q: %w", amount, err)
	}
	return &r, nil
}

// scanFlowRecords scans multiple rows into a slice of FlowRecord.
func scanFlowRecords(rows pgx.Rows) ([]*domain.FlowRecord, error) {
	var records []*domain.FlowRecord
	for rows.Next() {
		r, err := scanFlowRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan flow record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow records: %w", err)
	}
	return records, nil
}
