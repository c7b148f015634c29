package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))

	val, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), val)
}

func TestMemoryTTLExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry should expire after its TTL")
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, m.Delete(ctx, "k"))

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is fine.
	require.NoError(t, m.Delete(ctx, "k"))
}

func TestMemoryIncrWindowFixedReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	count, resetAt, err := m.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	// Later increments must not move the reset instant.
	now = now.Add(30 * time.Second)
	count, resetAt2, err := m.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, resetAt, resetAt2, "windowResetAt is fixed at first write")
}

func TestMemoryIncrWindowFreshAfterReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := m.IncrWindow(ctx, "w", time.Minute)
		require.NoError(t, err)
	}

	now = now.Add(time.Minute)
	count, resetAt, err := m.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "expired window starts a fresh counter")
	assert.Equal(t, now.Add(time.Minute), resetAt)
}

func TestMemoryIncrWindowConcurrent(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	const workers = 8
	const perWorker = 50
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < perWorker; j++ {
				_, _, err := m.IncrWindow(ctx, "w", time.Hour)
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}

	count, _, err := m.IncrWindow(ctx, "w", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(workers*perWorker+1), count, "no lost increments under concurrency")
}

func TestMemoryPeekWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(WithClock(func() time.Time { return now }))
	defer m.Close()
	ctx := context.Background()

	count, resetAt, err := m.PeekWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "missing window reads as empty")
	assert.Equal(t, now.Add(time.Minute), resetAt)

	_, incrReset, err := m.IncrWindow(ctx, "w", time.Minute)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		count, resetAt, err = m.PeekWindow(ctx, "w", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "peeking never increments")
		assert.Equal(t, incrReset, resetAt)
	}

	now = now.Add(time.Minute)
	count, _, err = m.PeekWindow(ctx, "w", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "expired window reads as empty")
}

func TestMemoryStats(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	_, _, _ = m.Get(ctx, "k")
	_, _, _ = m.Get(ctx, "nope")

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
	assert.Equal(t, int64(1), stats.Keys)
}

func TestMemoryEmptyKeyRejected(t *testing.T) {
	m := NewMemory()
	defer m.Close()
	ctx := context.Background()

	_, _, err := m.Get(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, m.Set(ctx, "", nil, 0), ErrInvalidKey)
	_, _, err = m.IncrWindow(ctx, "", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidKey)
}
