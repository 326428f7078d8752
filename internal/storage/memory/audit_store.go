package memory

import (
	"context"
	"sort"
	"sync"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// AuditStore is an in-memory implementation of storage.AuditStore.
type AuditStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AuditRow // keyed by row id
}

// NewAuditStore creates a new in-memory audit store.
func NewAuditStore() *AuditStore {
	return &AuditStore{
		data: make(map[string]*domain.AuditRow),
	}
}

// Compile-time interface check.
var _ storage.AuditStore = (*AuditStore)(nil)

// Append adds audit rows, overwriting previously observed ids so the trail
// stays content-idempotent under replay.
func (s *AuditStore) Append(_ context.Context, rows []*domain.AuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	for _, r := range rows {
		if r == nil || r.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rows {
		rowCopy := *r
		s.data[r.ID] = &rowCopy
	}
	return nil
}

// GetAll retrieves all audit rows ordered by id.
func (s *AuditStore) GetAll(_ context.Context) ([]*domain.AuditRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.AuditRow, 0, len(s.data))
	for _, r := range s.data {
		rowCopy := *r
		result = append(result, &rowCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}
