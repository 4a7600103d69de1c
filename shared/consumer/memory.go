package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/NullPoint3rDev/event-driven-order/shared/models"
)

type consumptionKey struct {
	consumerID string
	eventID    models.ID
}

// MemoryConsumptionStore implements ConsumptionStore in memory. Used by tests
// and local single-process runs.
type MemoryConsumptionStore struct {
	mux     sync.RWMutex
	records map[consumptionKey]*ConsumptionRecord
}

// NewMemoryConsumptionStore creates an empty store
func NewMemoryConsumptionStore() *MemoryConsumptionStore {
	return &MemoryConsumptionStore{records: make(map[consumptionKey]*ConsumptionRecord)}
}

// Get returns the record for (consumerID, eventID), or nil when absent
func (s *MemoryConsumptionStore) Get(ctx context.Context, consumerID string, eventID models.ID) (*ConsumptionRecord, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return s.records[consumptionKey{consumerID, eventID}], nil
}

// Put inserts the record; the first writer wins
func (s *MemoryConsumptionStore) Put(ctx context.Context, record *ConsumptionRecord) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	key := consumptionKey{record.ConsumerID, record.EventID}
	if _, ok := s.records[key]; ok {
		return nil
	}
	s.records[key] = record
	return nil
}

// PurgeOlderThan removes records applied before horizon
func (s *MemoryConsumptionStore) PurgeOlderThan(ctx context.Context, horizon time.Time) (int64, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	var purged int64
	for key, record := range s.records {
		if record.AppliedAt.Before(horizon) {
			delete(s.records, key)
			purged++
		}
	}
	return purged, nil
}

// MemoryDeadLetterStore implements DeadLetterStore in memory
type MemoryDeadLetterStore struct {
	mux     sync.RWMutex
	entries []*DeadLetterEntry
}

// NewMemoryDeadLetterStore creates an empty store
func NewMemoryDeadLetterStore() *MemoryDeadLetterStore {
	return &MemoryDeadLetterStore{}
}

// Park stores an entry; parking the same event again bumps the attempt count
func (s *MemoryDeadLetterStore) Park(ctx context.Context, entry *DeadLetterEntry) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	for _, existing := range s.entries {
		if existing.ConsumerID == entry.ConsumerID && existing.EventID == entry.EventID {
			existing.AttemptCount += entry.AttemptCount
			existing.LastError = entry.LastError
			return nil
		}
	}
	s.entries = append(s.entries, entry)
	return nil
}

// List returns parked entries for a consumer, oldest first
func (s *MemoryDeadLetterStore) List(ctx context.Context, consumerID string, offset, limit int) ([]*DeadLetterEntry, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	var matched []*DeadLetterEntry
	for _, entry := range s.entries {
		if entry.ConsumerID == consumerID {
			matched = append(matched, entry)
		}
	}

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Find returns the parked entry for (consumerID, eventID), or nil when absent
func (s *MemoryDeadLetterStore) Find(ctx context.Context, consumerID string, eventID models.ID) (*DeadLetterEntry, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	for _, entry := range s.entries {
		if entry.ConsumerID == consumerID && entry.EventID == eventID {
			return entry, nil
		}
	}
	return nil, nil
}

// Remove deletes a parked entry
func (s *MemoryDeadLetterStore) Remove(ctx context.Context, consumerID string, eventID models.ID) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	for i, entry := range s.entries {
		if entry.ConsumerID == consumerID && entry.EventID == eventID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}
