// Package reqlog captures one structured log entry per request, keeps a
// bounded in-memory window of recent traffic, mirrors entries into the
// shared cache best-effort, and answers query/aggregate/export calls.
package reqlog

import (
	"strings"
	"time"
)

// Entry is the immutable record of one completed request.
type Entry struct {
	ID        string            `json:"id"`
	RequestID string            `json:"requestId"`
	Time      time.Time         `json:"time"`
	Method    string            `json:"method"`
	Path      string            `json:"path"`
	Query     string            `json:"query,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	Status    int               `json:"status"`
	Duration  int64             `json:"durationMs"`
	TenantID  string            `json:"tenantId,omitempty"`
	UserID    string            `json:"userId,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
}

// Filter selects entries for Query. Zero values match everything.
type Filter struct {
	TenantID string
	UserID   string
	Method   string
	Status   int
	Contains string // substring match on path
	From     time.Time
	To       time.Time
	Offset   int
	Limit    int
}

func (f Filter) matches(e *Entry) bool {
	if f.TenantID != "" && e.TenantID != f.TenantID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Method != "" && e.Method != f.Method {
		return false
	}
	if f.Status != 0 && e.Status != f.Status {
		return false
	}
	if f.Contains != "" && !strings.Contains(e.Path, f.Contains) {
		return false
	}
	if !f.From.IsZero() && e.Time.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Time.After(f.To) {
		return false
	}
	return true
}

// EndpointCount is one row of the top-endpoints aggregate.
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// Aggregate summarizes the buffered entries.
type Aggregate struct {
	Total         int64           `json:"total"`
	AvgDurationMs float64         `json:"avgDurationMs"`
	ByStatus      map[int]int64   `json:"byStatus"`
	TopEndpoints  []EndpointCount `json:"topEndpoints"`
	ErrorCount    int64           `json:"errorCount"`
}
