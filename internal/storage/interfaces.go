package storage

import (
	"context"

	"pool-ledger-lab/internal/domain"
)

// FlowRecordStore provides access to flow_records storage.
type FlowRecordStore interface {
	// Upsert creates or wholesale-overwrites the record with its id.
	// Replaying the same event writes identical content.
	Upsert(ctx context.Context, r *domain.FlowRecord) error

	// UpsertBulk applies multiple upserts atomically.
	UpsertBulk(ctx context.Context, records []*domain.FlowRecord) error

	// GetByID retrieves a record by its id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.FlowRecord, error)

	// GetAll retrieves all records ordered by (block_number, tx_hash, id).
	GetAll(ctx context.Context) ([]*domain.FlowRecord, error)

	// GetByProvider retrieves all records for a user, same ordering as GetAll.
	GetByProvider(ctx context.Context, provider string) ([]*domain.FlowRecord, error)
}

// PoolStore provides access to pools storage.
type PoolStore interface {
	// Get retrieves a pool by its id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.Pool, error)

	// Replace creates or wholesale-replaces a pool record. Pool records are
	// never partially mutated.
	Replace(ctx context.Context, p *domain.Pool) error
}

// OracleRateStore provides access to oracle_rates storage.
type OracleRateStore interface {
	// Get retrieves a rate record by its id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.OracleRate, error)

	// Create adds a new immutable rate record.
	// Returns ErrDuplicateKey if the id already exists.
	Create(ctx context.Context, r *domain.OracleRate) error
}

// UserAggregateStore provides access to user_aggregates storage.
type UserAggregateStore interface {
	// Upsert creates or overwrites the aggregate for a user.
	Upsert(ctx context.Context, a *domain.UserAggregate) error

	// GetByUser retrieves the aggregate for a user. Returns ErrNotFound if not exists.
	GetByUser(ctx context.Context, user string) (*domain.UserAggregate, error)

	// GetAll retrieves all aggregates ordered by user.
	GetAll(ctx context.Context) ([]*domain.UserAggregate, error)
}

// AuditStore provides access to the append-only audit trail.
type AuditStore interface {
	// Append adds audit rows. Re-appending an id observed before overwrites
	// the previous row, keeping the trail content-idempotent under replay.
	Append(ctx context.Context, rows []*domain.AuditRow) error

	// GetAll retrieves all audit rows ordered by id.
	GetAll(ctx context.Context) ([]*domain.AuditRow, error)
}
