package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// OracleRateStore implements storage.OracleRateStore using PostgreSQL.
type OracleRateStore struct {
	pool *Pool
}

// NewOracleRateStore creates a new OracleRateStore.
func NewOracleRateStore(pool *Pool) *OracleRateStore {
	return &OracleRateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OracleRateStore = (*OracleRateStore)(nil)

// Get retrieves a rate record by its id.
func (s *OracleRateStore) Get(ctx context.Context, id string) (*domain.OracleRate, error) {
	query := `SELECT id, token, block_number, rate::text, source FROM oracle_rates WHERE id = $1`

	var (
		r    domain.OracleRate
		rate string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&r.ID, &r.Token, &r.BlockNumber, &rate, &r.Source)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get oracle rate: %w", err)
	}
	r.Rate, err = decimal.NewFromString(rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rate, err)
	}
	return &r, nil
}

// Create adds a new immutable rate record. Returns ErrDuplicateKey if the id
// already exists.
func (s *OracleRateStore) Create(ctx context.Context, r *domain.OracleRate) error {
	query := `
		INSERT INTO oracle_rates (id, token, block_number, rate, source)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.pool.Exec(ctx, query, r.ID, r.Token, r.BlockNumber, r.Rate.String(), r.Source)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("create oracle rate: %w", err)
	}
	return nil
}
