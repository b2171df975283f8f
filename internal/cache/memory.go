package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	data     []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) freshAt(now time.Time) bool {
	return !now.After(e.storedAt.Add(e.ttl))
}

// Memory is the in-process Cache. Writers always replace entries atomically;
// there is no partial mutation.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]entry
	now        func() time.Time
	staleGrace time.Duration

	hits, misses, evictions, sets uint64
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry), now: time.Now, staleGrace: time.Hour}
}

// WithClock overrides the time source. Tests only.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		m.misses++
		return nil, false
	}
	if !e.freshAt(m.now()) {
		delete(m.entries, key)
		m.evictions++
		m.misses++
		return nil, false
	}
	m.hits++
	return e.data, true
}

func (m *Memory) GetStale(_ context.Context, key string) ([]byte, bool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, false
	}
	return e.data, true, e.freshAt(m.now())
}

func (m *Memory) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{data: data, storedAt: m.now(), ttl: ttl}
	m.sets++
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Cleanup evicts expired entries and reports how many were removed. Entries
// keep a one-hour stale grace past their TTL so the fallback path can still
// read them during a provider outage; beyond that they are gone for good.
func (m *Memory) Cleanup(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if now.After(e.storedAt.Add(e.ttl + m.staleGrace)) {
			delete(m.entries, k)
			removed++
		}
	}
	m.evictions += uint64(removed)
	return removed
}

func (m *Memory) Stats(_ context.Context) Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Entries:   len(m.entries),
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Sets:      m.sets,
	}
}
