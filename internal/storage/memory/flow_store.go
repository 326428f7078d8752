package memory

import (
	"context"
	"sort"
	"sync"

	"pool-ledger-lab/internal/domain"
	"pool-ledger-lab/internal/storage"
)

// FlowRecordStore is an in-memory implementation of storage.FlowRecordStore.
type FlowRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.FlowRecord // keyed by record id
}

// NewFlowRecordStore creates a new in-memory flow record store.
func NewFlowRecordStore() *FlowRecordStore {
	return &FlowRecordStore{
		data: make(map[string]*domain.FlowRecord),
	}
}

// Compile-time interface check.
var _ storage.FlowRecordStore = (*FlowRecordStore)(nil)

// Upsert creates or wholesale-overwrites the record with its id.
func (s *FlowRecordStore) Upsert(_ context.Context, r *domain.FlowRecord) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recordCopy := *r
	s.data[r.ID] = &recordCopy
	return nil
}

// UpsertBulk applies multiple upserts atomically.
func (s *FlowRecordStore) UpsertBulk(_ context.Context, records []*domain.FlowRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if r == nil || r.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		recordCopy := *r
		s.data[r.ID] = &recordCopy
	}
	return nil
}

// GetByID retrieves a record by its id.
func (s *FlowRecordStore) GetByID(_ context.Context, id string) (*domain.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	recordCopy := *r
	return &recordCopy, nil
}

// GetAll retrieves all records ordered by (block_number, tx_hash, id).
func (s *FlowRecordStore) GetAll(_ context.Context) ([]*domain.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.FlowRecord, 0, len(s.data))
	for _, r := range s.data {
		recordCopy := *r
		result = append(result, &recordCopy)
	}

	sortFlowRecords(result)
	return result, nil
}

// GetByProvider retrieves all records for a user.
func (s *FlowRecordStore) GetByProvider(_ context.Context, provider string) ([]*domain.FlowRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.FlowRecord
	for _, r := range s.data {
		if r.Provider == provider {
			recordCopy := *r
			result = append(result, &recordCopy)
		}
	}

	sortFlowRecords(result)
	return result, nil
}

// sortFlowRecords orders records by (block_number, tx_hash, id).
func sortFlowRecords(records []*domain.FlowRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber < records[j].BlockNumber
		}
		if records[i].TxHash != records[j].TxHash {
			return records[i].TxHash < records[j].TxHash
		}
		return records[i].ID < records[j].ID
	})
}
