// Package redis implements a shared oracle-rate store on Redis. SETNX gives
// the create-once semantics the rate cache relies on across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// rateRecord is the JSON wire form of an oracle rate. The rate travels as a
// string to stay exact.
type rateRecord struct {
	ID          string `json:"id"`
	Token       string `json:"token"`
	BlockNumber int64  `json:"blockNumber"`
	Rate        string `json:"rate"`
	Source      string `json:"source"`
}

// OracleRateStore implements storage.OracleRateStore using Redis.
type OracleRateStore struct {
	client *redis.Client
	prefix string
}

// NewOracleRateStore creates an OracleRateStore against addr.
func NewOracleRateStore(addr, password string, db int) *OracleRateStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &OracleRateStore{client: client, prefix: "rate:"}
}

// NewOracleRateStoreWithClient wraps an existing client, for tests and shared
// connection setups.
func NewOracleRateStoreWithClient(client *redis.Client) *OracleRateStore {
	return &OracleRateStore{client: client, prefix: "rate:"}
}

// Compile-time interface check.
var _ storage.OracleRateStore = (*OracleRateStore)(nil)

// Close closes the underlying client.
func (s *OracleRateStore) Close() error {
	return s.client.Close()
}

// Get retrieves a rate record by its id.
func (s *OracleRateStore) Get(ctx context.Context, id string) (*domain.OracleRate, error) {
	data, err := s.client.Get(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get oracle rate %s: %w", id, err)
	}

	var rec rateRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal oracle rate %s: %w", id, err)
	}

	rate, err := decimal.NewFromString(rec.Rate)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", rec.Rate, err)
	}

	return &domain.OracleRate{
		ID:          rec.ID,
		Token:       rec.Token,
		BlockNumber: rec.BlockNumber,
		Rate:        rate,
		Source:      rec.Source,
	}, nil
}

// Create adds a new immutable rate record. SETNX rejects an existing key, so
// concurrent writers observe ErrDuplicateKey and re-read the canonical record.
func (s *OracleRateStore) Create(ctx context.Context, r *domain.OracleRate) error {
	data, err := json.Marshal(rateRecord{
		ID:          r.ID,
		Token:       r.Token,
		BlockNumber: r.BlockNumber,
		Rate:        r.Rate.String(),
		Source:      r.Source,
	})
	if err != nil {
		return fmt.Errorf("marshal oracle rate %s: %w", r.ID, err)
	}

	created, err := s.client.SetNX(ctx, s.prefix+r.ID, data, 0).Result()
	if err != nil {
		return fmt.Errorf("create oracle rate %s: %w", r.ID, err)
	}
	if !created {
		return storage.ErrDuplicateKey
	}
	return nil
}
