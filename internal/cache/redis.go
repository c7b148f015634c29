package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWindowScript increments the counter and pins the window TTL on first
// write only, so the reset instant is fixed for the life of the window.
var incrWindowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// Redis is a Cache backed by a shared Redis instance. This is the backend
// that makes rate-limit counters correct across horizontally scaled gateway
// processes.
type Redis struct {
	rdb    *redis.Client
	prefix string
	stats  counters
}

// RedisOption configures a Redis cache.
type RedisOption func(*Redis)

// WithPrefix namespaces every key the cache touches.
func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) { r.prefix = prefix }
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, prefix: "gw"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Redis) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

// Get retrieves a value.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrInvalidKey
	}
	val, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.stats.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}
	r.stats.hits.Add(1)
	return val, true, nil
}

// Set stores a value with an optional TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := r.rdb.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	r.stats.sets.Add(1)
	return nil
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	r.stats.deletes.Add(1)
	return nil
}

// IncrWindow atomically increments the fixed-window counter under key.
// INCR plus first-write PEXPIRE run in one script, so concurrent callers
// across gateway instances cannot under-count.
func (r *Redis) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if key == "" {
		return 0, time.Time{}, ErrInvalidKey
	}
	res, err := incrWindowScript.Run(ctx, r.rdb, []string{r.key(key)}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis incr window %q: %w", key, err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis incr window %q: unexpected reply %v", key, res)
	}
	count, _ := res[0].(int64)
	ttlMillis, _ := res[1].(int64)
	if ttlMillis < 0 {
		// PTTL of -1 means a counter without expiry (shouldn't happen
		// unless someone wrote the key out-of-band); treat the window as
		// just started rather than rejecting forever.
		ttlMillis = window.Milliseconds()
	}
	resetAt := time.Now().Add(time.Duration(ttlMillis) * time.Millisecond)
	return count, resetAt, nil
}

// PeekWindow reads the fixed-window counter under key without incrementing.
func (r *Redis) PeekWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	if key == "" {
		return 0, time.Time{}, ErrInvalidKey
	}
	pipe := r.rdb.Pipeline()
	getCmd := pipe.Get(ctx, r.key(key))
	ttlCmd := pipe.PTTL(ctx, r.key(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("redis peek window %q: %w", key, err)
	}

	count, err := getCmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, time.Now().Add(window), nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis peek window %q: %w", key, err)
	}
	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = window
	}
	return count, time.Now().Add(ttl), nil
}

// Stats returns a snapshot of operation counters. Keys reports the size of
// the whole database, not just this prefix; counting a prefix would require
// a SCAN sweep.
func (r *Redis) Stats() Stats {
	keys, err := r.rdb.DBSize(context.Background()).Result()
	if err != nil {
		keys = -1
	}
	return r.stats.snapshot(keys)
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
