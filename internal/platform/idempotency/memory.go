package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps reservations in process. Entries expire lazily on access.
type MemoryStore struct {
	clock func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	record
	expiresAt time.Time
}

// NewMemoryStore constructs an empty store. A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{clock: clock, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, ttl time.Duration) (Reservation, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && now.Before(entry.expiresAt) {
		return entry.reservation(fingerprint)
	}
	s.entries[key] = memoryEntry{record: record{Fingerprint: fingerprint}, expiresAt: now.Add(ttlOrDefault(ttl))}
	return Reservation{State: StateNew}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key, fingerprint string, resp Response, ttl time.Duration) error {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok && entry.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	resp.Body = append([]byte(nil), resp.Body...)
	s.entries[key] = memoryEntry{
		record:    record{Fingerprint: fingerprint, Completed: true, Response: resp},
		expiresAt: now.Add(ttlOrDefault(ttl)),
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

var _ Store = (*MemoryStore)(nil)
