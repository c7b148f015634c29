package reqlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearledger/gateway/internal/cache"
	"github.com/clearledger/gateway/internal/requestid"
)

const (
	// DefaultCapacity bounds the in-memory window of recent entries.
	DefaultCapacity = 10000

	// DefaultBodyCap bounds how much of a request body one entry retains.
	DefaultBodyCap = 4096

	entryTTL = 7 * 24 * time.Hour
	dailyTTL = 30 * 24 * time.Hour

	persistTimeout = 5 * time.Second
)

// Sink receives completed entries for durable archival. Store must be safe
// for concurrent use; errors are logged by the service and never propagate.
type Sink interface {
	Store(ctx context.Context, e *Entry) error
}

// Service owns the bounded entry buffer and its best-effort mirrors.
type Service struct {
	mu   sync.RWMutex
	ring *ring

	cache   cache.Cache
	sink    Sink
	logger  *slog.Logger
	bodyCap int
	clock   func() time.Time

	// syncPersist makes End persist inline instead of in a goroutine.
	syncPersist bool
	wg          sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithCapacity overrides the buffer capacity.
func WithCapacity(n int) Option {
	return func(s *Service) { s.ring = newRing(n) }
}

// WithBodyCap overrides how many body bytes an entry retains.
func WithBodyCap(n int) Option {
	return func(s *Service) { s.bodyCap = n }
}

// WithSink adds a durable archive sink.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithSyncPersist persists inline instead of asynchronously, for tests.
func WithSyncPersist() Option {
	return func(s *Service) { s.syncPersist = true }
}

// New creates a logging service. The cache may be nil, in which case entries
// live only in the in-memory buffer.
func New(c cache.Cache, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		ring:    newRing(DefaultCapacity),
		cache:   c,
		logger:  logger,
		bodyCap: DefaultBodyCap,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active is an in-flight request being timed.
type Active struct {
	entry *Entry
	start time.Time
}

// RequestID returns the ID assigned to this request.
func (a *Active) RequestID() string { return a.entry.RequestID }

// Begin assigns the request its ID (reusing the inbound header when present),
// snapshots the request shape, and starts the timer.
func (s *Service) Begin(r *http.Request) *Active {
	e := &Entry{
		ID:        uuid.New().String(),
		RequestID: requestid.FromRequest(r),
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Headers:   captureHeaders(r.Header),
		TenantID:  r.Header.Get("X-Tenant-ID"),
		UserID:    r.Header.Get("X-User-ID"),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
	if r.Method != http.MethodGet && r.Body != nil {
		e.Body = s.captureBody(r)
	}
	return &Active{entry: e, start: s.clock()}
}

// End finalizes the entry, appends it to the bounded buffer (oldest evicted
// first at capacity), and mirrors it into the cache and sink fire-and-forget.
func (s *Service) End(a *Active, status int) *Entry {
	if a == nil {
		return nil
	}
	e := a.entry
	e.Status = status
	e.Time = s.clock()
	e.Duration = e.Time.Sub(a.start).Milliseconds()

	s.mu.Lock()
	s.ring.append(e)
	s.mu.Unlock()

	if s.syncPersist {
		s.persist(e)
	} else {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.persist(e)
		}()
	}
	return e
}

// persist mirrors the entry under its per-entry key and the per-day
// collection key, then hands it to the sink. Every failure here is logged
// and swallowed: persistence never blocks or fails a response.
func (s *Service) persist(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if s.cache != nil {
		payload, err := json.Marshal(e)
		if err == nil {
			if err := s.cache.Set(ctx, "log:"+e.ID, payload, entryTTL); err != nil {
				s.logger.Warn("request log persist failed",
					slog.String("entry", e.ID), slog.String("error", err.Error()))
			}
			s.appendDaily(ctx, e)
		}
	}

	if s.sink != nil {
		if err := s.sink.Store(ctx, e); err != nil {
			s.logger.Warn("request log sink failed",
				slog.String("entry", e.ID), slog.String("error", err.Error()))
		}
	}
}

// appendDaily adds the entry ID to the day's collection key. The
// read-modify-write is not atomic; concurrent writers can drop an ID from
// the day index. The per-entry keys remain authoritative.
func (s *Service) appendDaily(ctx context.Context, e *Entry) {
	key := "logs:daily:" + e.Time.UTC().Format("2006-01-02")

	var ids []string
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		_ = json.Unmarshal(raw, &ids)
	}
	ids = append(ids, e.ID)
	payload, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, dailyTTL); err != nil {
		s.logger.Warn("daily log index update failed",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Flush waits for outstanding persistence writes, for shutdown and tests.
func (s *Service) Flush() {
	s.wg.Wait()
}

// Query returns buffered entries matching the filter, newest first, with
// offset/limit applied after filtering.
func (s *Service) Query(f Filter) []*Entry {
	s.mu.RLock()
	entries := s.ring.snapshot()
	s.mu.RUnlock()

	matched := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched
}

// Len reports how many entries are currently buffered.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.len()
}

// Capacity reports the buffer bound.
func (s *Service) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.capacity()
}

// Stats aggregates the buffered entries.
func (s *Service) Stats() Aggregate {
	s.mu.RLock()
	entries := s.ring.snapshot()
	s.mu.RUnlock()

	agg := Aggregate{ByStatus: make(map[int]int64)}
	endpoints := make(map[string]int64)
	var totalDuration int64

	for _, e := range entries {
		agg.Total++
		totalDuration += e.Duration
		agg.ByStatus[e.Status]++
		endpoints[e.Method+" "+e.Path]++
		if e.Status >= http.StatusBadRequest {
			agg.ErrorCount++
		}
	}
	if agg.Total > 0 {
		agg.AvgDurationMs = float64(totalDuration) / float64(agg.Total)
	}

	agg.TopEndpoints = topEndpoints(endpoints, 10)
	return agg
}

func topEndpoints(counts map[string]int64, n int) []EndpointCount {
	out := make([]EndpointCount, 0, len(counts))
	for ep, c := range counts {
		out = append(out, EndpointCount{Endpoint: ep, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Format selects an export rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Export renders the buffered entries, newest first.
func (s *Service) Export(format Format) ([]byte, error) {
	entries := s.Query(Filter{})

	switch format {
	case FormatJSON:
		return json.Marshal(entries)
	case FormatCSV:
		return exportCSV(entries)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

var csvHeader = []string{
	"id", "request_id", "time", "method", "path", "query",
	"status", "duration_ms", "tenant_id", "user_id", "ip", "user_agent",
}

func exportCSV(entries []*Entry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			e.ID,
			e.RequestID,
			e.Time.UTC().Format(time.RFC3339Nano),
			e.Method,
			e.Path,
			e.Query,
			strconv.Itoa(e.Status),
			strconv.FormatInt(e.Duration, 10),
			e.TenantID,
			e.UserID,
			e.IP,
			e.UserAgent,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// captureHeaders copies request headers, redacting credentials.
func captureHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if k == "Authorization" || k == "Cookie" {
			out[k] = "[redacted]"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}

func (s *Service) captureBody(r *http.Request) string {
	limited := io.LimitReader(r.Body, int64(s.bodyCap)+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return ""
	}
	// Hand the handler back a body with the consumed bytes replayed.
	r.Body = replayBody{bytes.NewReader(data), r.Body}
	if len(data) > s.bodyCap {
		data = data[:s.bodyCap]
	}
	return string(data)
}

// replayBody re-serves already-read bytes before the remaining stream.
type replayBody struct {
	head io.Reader
	rest io.ReadCloser
}

func (b replayBody) Read(p []byte) (int, error) {
	n, err := b.head.Read(p)
	if err == io.EOF {
		if n > 0 {
			return n, nil
		}
		return b.rest.Read(p)
	}
	return n, err
}

func (b replayBody) Close() error { return b.rest.Close() }
