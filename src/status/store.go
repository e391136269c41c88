// Copyright (c) 2026 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package status

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/H0llyW00dzZ/connectivity-checker/src/report"
)

// Store holds the latest record per key.
// Implement this interface to keep results somewhere other than memory
// and pass it to [NewServer].
type Store interface {
	// Get retrieves a record by key.
	// Returns the record and true if found and not expired,
	// or a zero Record and false otherwise.
	Get(key string) (report.Record, bool)

	// Set stores a record with the configured TTL.
	Set(key string, rec report.Record)

	// All returns every live record ordered by key.
	All() []report.Record

	// Flush removes all entries.
	Flush()
}

// storeEntry holds a record with its expiration time.
type storeEntry struct {
	key       string
	record    report.Record
	expiresAt time.Time
}

// memoryStore is the default in-memory store with TTL support.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]storeEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore returns an in-memory [Store] whose entries expire ttl
// after they were set.
func NewMemoryStore(ttl time.Duration) Store {
	return newMemoryStore(ttl, time.Now)
}

func newMemoryStore(ttl time.Duration, now func() time.Time) *memoryStore {
	return &memoryStore{
		entries: make(map[string]storeEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns false if the entry does not exist or has expired.
func (s *memoryStore) Get(key string) (report.Record, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return report.Record{}, false
	}

	if s.now().After(entry.expiresAt) {
		// Lazily remove expired entries.
		s.mu.Lock()
		// The entry may have been replaced while unlocked.
		if current, exists := s.entries[key]; exists && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return report.Record{}, false
	}

	return entry.record, true
}

// Set stores a record with the configured TTL.
func (s *memoryStore) Set(key string, rec report.Record) {
	s.mu.Lock()
	s.entries[key] = storeEntry{
		key:       key,
		record:    rec,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()
}

// All skips expired entries without removing them.
func (s *memoryStore) All() []report.Record {
	now := s.now()

	s.mu.RLock()
	live := make([]storeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if !now.After(e.expiresAt) {
			live = append(live, e)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(live, func(a, b storeEntry) int { return strings.Compare(a.key, b.key) })
	out := make([]report.Record, len(live))
	for i, e := range live {
		out[i] = e.record
	}
	return out
}

// Flush removes all entries.
func (s *memoryStore) Flush() {
	s.mu.Lock()
	s.entries = make(map[string]storeEntry)
	s.mu.Unlock()
}
