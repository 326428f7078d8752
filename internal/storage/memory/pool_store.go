package memory

import (
	"context"
	"sync"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// PoolStore is an in-memory implementation of storage.PoolStore.
type PoolStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Pool // keyed by pool id
}

// NewPoolStore creates a new in-memory pool store.
func NewPoolStore() *PoolStore {
	return &PoolStore{
		data: make(map[string]*domain.Pool),
	}
}

// Compile-time interface check.
var _ storage.PoolStore = (*PoolStore)(nil)

// Get retrieves a pool by its id.
func (s *PoolStore) Get(_ context.Context, id string) (*domain.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	poolCopy := copyPool(p)
	return poolCopy, nil
}

// Replace creates or wholesale-replaces a pool record.
func (s *PoolStore) Replace(_ context.Context, p *domain.Pool) error {
	if p == nil || p.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[p.ID] = copyPool(p)
	return nil
}

// copyPool deep-copies a pool including its coin list.
func copyPool(p *domain.Pool) *domain.Pool {
	poolCopy := *p
	poolCopy.Coins = append([]string(nil), p.Coins...)
	return &poolCopy
}
