package cache

import (
	"context"
	"sync"
	"time"
)

const defaultMemoryMaxSize = 10000

// MemoryBackend keeps entries in process with TTL expiry and LRU eviction
// once maxSize entries are held.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   []string
	maxSize int
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryBackend(maxSize int) *MemoryBackend {
	if maxSize <= 0 {
		maxSize = defaultMemoryMaxSize
	}
	return &MemoryBackend{
		entries: make(map[string]*memoryEntry),
		order:   make([]string, 0, 64),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Tests use it to expire entries.
func (m *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	m.now = now
	return m
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[key]
	if !exists {
		return nil, ErrMiss
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		m.removeFromOrder(key)
		return nil, ErrMiss
	}
	m.moveToEnd(key)

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	entry := &memoryEntry{value: stored, expiresAt: m.now().Add(ttl)}

	if _, exists := m.entries[key]; exists {
		m.entries[key] = entry
		m.moveToEnd(key)
		return nil
	}

	if len(m.entries) >= m.maxSize {
		m.evictOldest()
	}
	m.entries[key] = entry
	m.order = append(m.order, key)
	return nil
}

func (m *MemoryBackend) DeleteMatching(_ context.Context, pattern string) (int, error) {
	match, err := newMatcher(pattern)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	kept := m.order[:0]
	for _, key := range m.order {
		if match(key) {
			delete(m.entries, key)
			deleted++
			continue
		}
		kept = append(kept, key)
	}
	m.order = kept
	return deleted, nil
}

func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) evictOldest() {
	if len(m.order) == 0 {
		return
	}
	oldest := m.order[0]
	m.order = m.order[1:]
	delete(m.entries, oldest)
}

func (m *MemoryBackend) moveToEnd(key string) {
	m.removeFromOrder(key)
	m.order = append(m.order, key)
}

func (m *MemoryBackend) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
