// Package track maintains per-process aggregate request statistics. These
// counters are per instance by design; a horizontally scaled deployment
// needs external aggregation (the Prometheus mirror) for a global view.
package track

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearledger/gateway/internal/requestid"
)

// Stats is a snapshot of the per-process aggregates.
type Stats struct {
	TotalRequests         int64   `json:"totalRequests"`
	SuccessfulRequests    int64   `json:"successfulRequests"`
	FailedRequests        int64   `json:"failedRequests"`
	AverageResponseTimeMs float64 `json:"averageResponseTimeMs"`
	ActiveConnections     int64   `json:"activeConnections"`
}

// Tracker mutates the aggregates on every request lifecycle event.
type Tracker struct {
	mu    sync.Mutex
	stats Stats

	// Optional Prometheus mirror.
	requests *prometheus.CounterVec
	active   prometheus.Gauge
	duration prometheus.Histogram
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithMetrics mirrors the aggregates as Prometheus metrics on the given
// registry. Ignored when registry is nil.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(t *Tracker) {
		if reg == nil {
			return
		}
		t.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "requests_total",
			Help:      "Total requests processed, by outcome.",
		}, []string{"outcome"})
		t.active = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "active_connections",
			Help:      "Requests currently in flight.",
		})
		t.duration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Request duration.",
			Buckets:   prometheus.DefBuckets,
		})
		reg.MustRegister(t.requests, t.active, t.duration)
	}
}

// New creates a tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin records a request entering the pipeline and returns the total-count
// sequence number for that request. The same number must be fed back to End
// so the running mean stays exact under concurrency.
func (t *Tracker) Begin() int64 {
	t.mu.Lock()
	t.stats.TotalRequests++
	t.stats.ActiveConnections++
	n := t.stats.TotalRequests
	t.mu.Unlock()

	if t.active != nil {
		t.active.Inc()
	}
	return n
}

// End records request completion. n is the sequence number Begin returned;
// using it (rather than re-reading the total) keeps the incremental mean
// avg' = (avg*(n-1) + d)/n drift-free when requests finish out of order.
func (t *Tracker) End(n int64, status int, duration time.Duration) {
	success := status >= http.StatusOK && status < http.StatusBadRequest
	ms := float64(duration.Milliseconds())

	t.mu.Lock()
	if success {
		t.stats.SuccessfulRequests++
	} else {
		t.stats.FailedRequests++
	}
	t.stats.ActiveConnections--
	t.stats.AverageResponseTimeMs = (t.stats.AverageResponseTimeMs*float64(n-1) + ms) / float64(n)
	t.mu.Unlock()

	if t.requests != nil {
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		t.requests.WithLabelValues(outcome).Inc()
		t.active.Dec()
		t.duration.Observe(duration.Seconds())
	}
}

// Snapshot returns a copy of the current aggregates.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Middleware wraps every request with Begin/End accounting and synthesizes
// a request ID when nothing upstream assigned one.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if requestid.FromContext(ctx) == "" {
			id := requestid.FromRequest(r)
			ctx = requestid.WithRequestID(ctx, id)
			if w.Header().Get(requestid.Header) == "" {
				w.Header().Set(requestid.Header, id)
			}
			r = r.WithContext(ctx)
		}

		n := t.Begin()
		start := time.Now()

		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		t.End(n, wrapped.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
