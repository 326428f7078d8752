package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// UserAggregateStore implements storage.UserAggregateStore using PostgreSQL.
type UserAggregateStore struct {
	pool *Pool
}

// NewUserAggregateStore creates a new UserAggregateStore.
func NewUserAggregateStore(pool *Pool) *UserAggregateStore {
	return &UserAggregateStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UserAggregateStore = (*UserAggregateStore)(nil)

// Upsert creates or overwrites the aggregate for a user.
func (s *UserAggregateStore) Upsert(ctx context.Context, a *domain.UserAggregate) error {
	query := `
		INSERT INTO user_aggregates (user_address, total_deposited, total_withdrawn, last_updated_block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_address) DO UPDATE SET
			total_deposited = EXCLUDED.total_deposited,
			total_withdrawn = EXCLUDED.total_withdrawn,
			last_updated_block = EXCLUDED.last_updated_block
	`

	_, err := s.pool.Exec(ctx, query,
		a.User, a.TotalDeposited.String(), a.TotalWithdrawn.String(), a.LastUpdatedBlock)
	if err != nil {
		return fmt.Errorf("upsert user aggregate: %w", err)
	}
	return nil
}

const selectAggregateColumns = `
	user_address, total_deposited::text, total_withdrawn::text, last_updated_block
`

// GetByUser retrieves the aggregate for a user.
func (s *UserAggregateStore) GetByUser(ctx context.Context, user string) (*domain.UserAggregate, error) {
	query := `SELECT ` + selectAggregateColumns + ` FROM user_aggregates WHERE user_address = $1`

	a, err := scanAggregate(s.pool.QueryRow(ctx, query, user))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user aggregate: %w", err)
	}
	return a, nil
}

// GetAll retrieves all aggregates ordered by user.
func (s *UserAggregateStore) GetAll(ctx context.Context) ([]*domain.UserAggregate, error) {
	query := `SELECT ` + selectAggregateColumns + ` FROM user_aggregates ORDER BY user_address ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all user aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []*domain.UserAggregate
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user aggregate: %w", err)
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user aggregates: %w", err)
	}
	return aggs, nil
}

// scanAggregate scans one row with exact decimal totals.
func scanAggregate(row pgx.Row) (*domain.UserAggregate, error) {
	var (
		a                    domain.UserAggregate
		deposited, withdrawn string
	)
	if err := row.Scan(&a.User, &deposited, &withdrawn, &a.LastUpdatedBlock); err != nil {
		return nil, err
	}

	var err error
	if a.TotalDeposited, err = decimal.NewFromString(deposited); err != nil {
		return nil, fmt.Errorf("parse total_deposited %q: %w", deposited, err)
	}
	if a.TotalWithdrawn, err = decimal.NewFromString(withdrawn); err != nil {
		return nil, fmt.Errorf("parse total_withdrawn %q: %w", withdrawn, err)
	}
	return &a, nil
}
