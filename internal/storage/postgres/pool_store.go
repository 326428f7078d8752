package postgres

import (
	"context"
	"fmt"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// PoolStore implements storage.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *Pool
}

// NewPoolStore creates a new PoolStore.
func NewPoolStore(pool *Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Get retrieves a pool by its id.
func (s *PoolStore) Get(ctx context.Context, id string) (*domain.Pool, error) {
	query := `SELECT id, coins, lp_token, created_at_block FROM pools WHERE id = $1`

	var p domain.Pool
	err := s.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Coins, &p.LPToken, &p.CreatedAtBlock)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return &p, nil
}

// Replace creates or wholesale-replaces a pool record.
func (s *PoolStore) Replace(ctx context.Context, p *domain.Pool) error {
	query := `
		INSERT INTO pools (id, coins, lp_token, created_at_block)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			coins = EXCLUDED.coins,
			lp_token = EXCLUDED.lp_token,
			created_at_block = EXCLUDED.created_at_block
	`

	_, err := s.pool.Exec(ctx, query, p.ID, p.Coins, p.LPToken, p.CreatedAtBlock)
	if err != nil {
		return fmt.Errorf("replace pool: %w", err)
	}
	return nil
}
