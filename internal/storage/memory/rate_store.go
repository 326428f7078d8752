package memory

import (
	"context"
	"sync"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// OracleRateStore is an in-memory implementation of storage.OracleRateStore.
type OracleRateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OracleRate // keyed by rate id
}

// NewOracleRateStore creates a new in-memory oracle rate store.
func NewOracleRateStore() *OracleRateStore {
	return &OracleRateStore{
		data: make(map[string]*domain.OracleRate),
	}
}

// Compile-time interface check.
var _ storage.OracleRateStore = (*OracleRateStore)(nil)

// Get retrieves a rate record by its id.
func (s *OracleRateStore) Get(_ context.Context, id string) (*domain.OracleRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	rateCopy := *r
	return &rateCopy, nil
}

// Create adds a new immutable rate record. Returns ErrDuplicateKey if exists.
func (s *OracleRateStore) Create(_ context.Context, r *domain.OracleRate) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}

	rateCopy := *r
	s.data[r.ID] = &rateCopy
	return nil
}
