package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process. Used when no Redis address is configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore constructs an empty memory-backed idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) live(id string, now time.Time) (Record, bool) {
	record, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	if !now.Before(record.ExpiresAt) {
		delete(s.records, id)
		return Record{}, false
	}
	return record, true
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashedKey(key)
	if record, ok := s.live(id, now); ok {
		return reservationFor(record, fingerprint)
	}
	record := pendingRecord(key, fingerprint, now.UTC(), ttl)
	s.records[id] = record
	return Reservation{State: ReservationStateNew, Record: record}, nil
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashedKey(key)
	record, ok := s.live(id, now)
	if ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	if !ok {
		record = Record{Key: key, Fingerprint: fingerprint}
	}
	s.records[id] = completeRecord(record, resp, now.UTC(), ttl)
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hashedKey(key)
	if record, ok := s.records[id]; ok && record.Fingerprint == fingerprint {
		delete(s.records, id)
	}
	return nil
}
