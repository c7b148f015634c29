// Package ratelimit implements fixed-window admission control backed by the
// shared cache, so limits hold across horizontally scaled gateway instances.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/clearledger/gateway/internal/cache"
)

// RequestInfo is the per-request context a key is derived from.
type RequestInfo struct {
	TenantID string
	UserID   string
	ClientIP string
	Method   string
	Path     string
}

// KeyFunc derives the admission bucket key from a request context. Identical
// logical contexts must always derive the same key.
type KeyFunc func(RequestInfo) string

// DefaultKeyFunc buckets by (tenant, user, client IP).
func DefaultKeyFunc(info RequestInfo) string {
	return strings.Join([]string{info.TenantID, info.UserID, info.ClientIP}, ":")
}

// TenantKeyFunc buckets by (tenant, method, path), one budget per tenant per
// route regardless of which user calls it.
func TenantKeyFunc(info RequestInfo) string {
	return strings.Join([]string{info.TenantID, info.Method, info.Path}, ":")
}

// UserKeyFunc buckets by (tenant, user, method, path).
func UserKeyFunc(info RequestInfo) string {
	return strings.Join([]string{info.TenantID, info.UserID, info.Method, info.Path}, ":")
}

// Config holds one admission policy.
type Config struct {
	// Name namespaces this policy's counters in the cache.
	Name string

	// Window is the fixed window length.
	Window time.Duration

	// MaxRequests is the admission budget per window.
	MaxRequests int64

	// KeyFunc derives bucket keys; DefaultKeyFunc when nil.
	KeyFunc KeyFunc
}

// Predefined policies.
func Strict() Config {
	return Config{Name: "strict", Window: 15 * time.Minute, MaxRequests: 10}
}

func Standard() Config {
	return Config{Name: "standard", Window: 15 * time.Minute, MaxRequests: 100}
}

func Relaxed() Config {
	return Config{Name: "relaxed", Window: 15 * time.Minute, MaxRequests: 1000}
}

func PerMinute() Config {
	return Config{Name: "per-minute", Window: time.Minute, MaxRequests: 60}
}

func PerHour() Config {
	return Config{Name: "per-hour", Window: time.Hour, MaxRequests: 1000}
}

// Decision is the outcome of one admission check. FailOpen marks requests
// that were admitted only because the cache backend failed, so dashboards
// can tell enforcement from outage instead of the outage hiding behind
// ordinary allows.
type Decision struct {
	Allowed    bool
	FailOpen   bool
	Limit      int64
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Service computes admission decisions against the shared cache.
type Service struct {
	cache  cache.Cache
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// New creates a rate-limit service for one policy.
func New(c cache.Cache, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = DefaultKeyFunc
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{cache: c, cfg: cfg, logger: logger, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the policy this service enforces.
func (s *Service) Config() Config {
	return s.cfg
}

// Key derives the cache key for a request context.
func (s *Service) Key(info RequestInfo) string {
	return "ratelimit:" + s.cfg.Name + ":" + s.cfg.KeyFunc(info)
}

// Check runs one admission decision. It never returns an error: a failing
// cache backend fails open by policy, tagged on the decision and logged
// here, and is never surfaced to the caller.
func (s *Service) Check(ctx context.Context, info RequestInfo) Decision {
	key := s.Key(info)

	count, resetAt, err := s.cache.IncrWindow(ctx, key, s.cfg.Window)
	if err != nil {
		s.logger.Warn("rate limit backend unavailable, failing open",
			slog.String("policy", s.cfg.Name),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Decision{
			Allowed:   true,
			FailOpen:  true,
			Limit:     s.cfg.MaxRequests,
			Remaining: s.cfg.MaxRequests,
			ResetAt:   s.clock().Add(s.cfg.Window),
		}
	}

	return s.decide(count, resetAt)
}

// Peek reports the caller's current window without consuming budget, for
// observability surfaces. A failing backend fails open the same way Check
// does, minus the log noise.
func (s *Service) Peek(ctx context.Context, info RequestInfo) Decision {
	key := s.Key(info)

	count, resetAt, err := s.cache.PeekWindow(ctx, key, s.cfg.Window)
	if err != nil {
		return Decision{
			Allowed:   true,
			FailOpen:  true,
			Limit:     s.cfg.MaxRequests,
			Remaining: s.cfg.MaxRequests,
			ResetAt:   s.clock().Add(s.cfg.Window),
		}
	}
	return s.decide(count, resetAt)
}

func (s *Service) decide(count int64, resetAt time.Time) Decision {
	remaining := s.cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	dec := Decision{
		Allowed:   count <= s.cfg.MaxRequests,
		Limit:     s.cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !dec.Allowed {
		secs := resetAt.Sub(s.clock())
		dec.RetryAfter = secs.Truncate(time.Second)
		if dec.RetryAfter < secs {
			dec.RetryAfter += time.Second
		}
		if dec.RetryAfter <= 0 {
			dec.RetryAfter = time.Second
		}
	}
	return dec
}
