package memory

import (
	"context"
	"sort"
	"sync"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// UserAggregateStore is an in-memory implementation of storage.UserAggregateStore.
type UserAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.UserAggregate // keyed by user
}

// NewUserAggregateStore creates a new in-memory user aggregate store.
func NewUserAggregateStore() *UserAggregateStore {
	return &UserAggregateStore{
		data: make(map[string]*domain.UserAggregate),
	}
}

// Compile-time interface check.
var _ storage.UserAggregateStore = (*UserAggregateStore)(nil)

// Upsert creates or overwrites the aggregate for a user.
func (s *UserAggregateStore) Upsert(_ context.Context, a *domain.UserAggregate) error {
	if a == nil || a.User == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	aggCopy := *a
	s.data[a.User] = &aggCopy
	return nil
}

// GetByUser retrieves the aggregate for a user.
func (s *UserAggregateStore) GetByUser(_ context.Context, user string) (*domain.UserAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.data[user]
	if !ok {
		return nil, storage.ErrNotFound
	}
	aggCopy := *a
	return &aggCopy, nil
}

// GetAll retrieves all aggregates ordered by user.
func (s *UserAggregateStore) GetAll(_ context.Context) ([]*domain.UserAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.UserAggregate, 0, len(s.data))
	for _, a := range s.data {
		aggCopy := *a
		result = append(result, &aggCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].User < result[j].User
	})

	return result, nil
}
