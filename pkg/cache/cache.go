// Package cache provides the day-scoped result cache used by the
// consensus aggregator. The Store interface keeps callers independent
// of the backend; an in-process map and Redis are both supported.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Store is the minimal get/set/evict capability the pipeline needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Evict(ctx context.Context, key string)
}

// DayKey builds a cache key from match identity and the calendar day,
// so entries expire naturally at midnight regardless of TTL.
func DayKey(matchID, home, away string, day time.Time) string {
	raw := fmt.Sprintf("%s_%s_%s_%s",
		matchID,
		strings.ToLower(home),
		strings.ToLower(away),
		day.Format("20060102"),
	)
	sum := md5.Sum([]byte(raw))
	return "consensus:" + hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process TTL store. Concurrent overwrites are
// last-writer-wins, which is all the pipeline requires.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get returns the cached value if present and unexpired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		m.Evict(context.Background(), key)
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with a TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

// Evict removes a key.
func (m *Memory) Evict(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of entries, expired included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops expired entries. The engine calls this periodically so
// a long-lived process does not accumulate stale keys.
func (m *Memory) Sweep() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}
