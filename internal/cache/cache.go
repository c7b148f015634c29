// Package cache provides the key-value store shared by gateway instances:
// rate-limit counters and request-log mirrors live here. Two backends are
// provided, an in-process memory store for single-instance and test use and
// a Redis store for horizontally scaled deployments.
package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrInvalidKey is returned when a key is empty.
var ErrInvalidKey = errors.New("cache: key must not be empty")

// Cache is the store contract the gateway depends on. All methods are safe
// for concurrent use. A zero TTL means no expiration.
type Cache interface {
	// Get retrieves a value. The second return is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with an optional TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrWindow atomically increments the fixed-window counter under key,
	// starting a fresh window of the given length when none exists. It
	// returns the post-increment count and the instant the window resets.
	// The reset time is fixed when the window starts and is not extended
	// by later increments.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// PeekWindow reads the fixed-window counter under key without
	// incrementing it. A missing or expired window reports count 0 and a
	// reset one window length from now.
	PeekWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Stats returns a snapshot of operation counters.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
	Keys    int64 `json:"keys"`
}

// counters tracks cache activity with atomic counters; observability is
// always on, there is no option to disable it.
type counters struct {
	hits    atomic.Int64
	misses  atomic.Int64
	sets    atomic.Int64
	deletes atomic.Int64
}

func (c *counters) snapshot(keys int64) Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Sets:    c.sets.Load(),
		Deletes: c.deletes.Load(),
		Keys:    keys,
	}
}
