package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiration
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

type windowEntry struct {
	count   int64
	resetAt time.Time
}

// Memory is an in-process Cache backed by maps with TTL entries and a
// janitor goroutine that sweeps expired keys.
type Memory struct {
	mu      sync.RWMutex
	items   map[string]memoryEntry
	windows map[string]windowEntry
	stats   counters
	clock   func() time.Time

	stop chan struct{}
	once sync.Once
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

// NewMemory creates a memory cache and starts its janitor.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		items:   make(map[string]memoryEntry),
		windows: make(map[string]windowEntry),
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.janitor(2 * time.Minute)
	return m
}

// Get retrieves a value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidKey
	}
	now := m.clock()

	m.mu.RLock()
	entry, ok := m.items[key]
	m.mu.RUnlock()

	if !ok || entry.expired(now) {
		m.stats.misses.Add(1)
		return nil, false, nil
	}
	m.stats.hits.Add(1)
	return entry.value, true, nil
}

// Set stores a value with an optional TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.clock().Add(ttl)
	}

	m.mu.Lock()
	m.items[key] = entry
	m.mu.Unlock()

	m.stats.sets.Add(1)
	return nil
}

// Delete removes a key.
func (m *Memory) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	delete(m.items, key)
	delete(m.windows, key)
	m.mu.Unlock()

	m.stats.deletes.Add(1)
	return nil
}

// IncrWindow atomically increments the fixed-window counter under key.
// The read-increment-write runs under one lock, so concurrent callers for
// the same key cannot under-count.
func (m *Memory) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if key == "" {
		return 0, time.Time{}, ErrInvalidKey
	}
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = windowEntry{resetAt: now.Add(window)}
	}
	w.count++
	m.windows[key] = w
	return w.count, w.resetAt, nil
}

// PeekWindow reads the fixed-window counter under key without incrementing.
func (m *Memory) PeekWindow(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if key == "" {
		return 0, time.Time{}, ErrInvalidKey
	}
	now := m.clock()

	m.mu.RLock()
	w, ok := m.windows[key]
	m.mu.RUnlock()

	if !ok || !now.Before(w.resetAt) {
		return 0, now.Add(window), nil
	}
	return w.count, w.resetAt, nil
}

// Stats returns a snapshot of operation counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	keys := int64(len(m.items) + len(m.windows))
	m.mu.RUnlock()
	return m.stats.snapshot(keys)
}

// Close stops the janitor.
func (m *Memory) Close() error {
	m.once.Do(func() { close(m.stop) })
	return nil
}

func (m *Memory) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

func (m *Memory) sweep() {
	now := m.clock()
	m.mu.Lock()
	for k, entry := range m.items {
		if entry.expired(now) {
			delete(m.items, k)
		}
	}
	for k, w := range m.windows {
		if !now.Before(w.resetAt) {
			delete(m.windows, k)
		}
	}
	m.mu.Unlock()
}
