package server

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/clearledger/gateway/internal/cache"
	"github.com/clearledger/gateway/internal/domain"
	"github.com/clearledger/gateway/internal/ratelimit"
	"github.com/clearledger/gateway/internal/reqlog"
	"github.com/clearledger/gateway/internal/response"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	response.Write(w, response.OK(map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"memory": map[string]any{
			"allocBytes":  mem.Alloc,
			"sysBytes":    mem.Sys,
			"heapObjects": mem.HeapObjects,
			"numGC":       mem.NumGC,
			"goroutines":  runtime.NumGoroutine(),
		},
		"stats": s.opts.Tracker.Snapshot(),
	}))
	return nil
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) error {
	var cacheStats cache.Stats
	if s.opts.Cache != nil {
		cacheStats = s.opts.Cache.Stats()
	}

	body := map[string]any{
		"requests": s.opts.Tracker.Snapshot(),
		"cache":    cacheStats,
	}
	if s.opts.RateLimit != nil {
		dec := s.opts.RateLimit.Peek(r.Context(), ratelimit.InfoFromRequest(r))
		body["rateLimit"] = map[string]any{
			"limit":     dec.Limit,
			"remaining": dec.Remaining,
			"resetAt":   dec.ResetAt.UTC().Format(time.RFC3339),
			"failOpen":  dec.FailOpen,
		}
	}

	response.Write(w, response.OK(body))
	return nil
}

func (s *Server) handleLogQuery(w http.ResponseWriter, r *http.Request) error {
	f, err := filterFromQuery(r)
	if err != nil {
		return err
	}
	entries := s.opts.Logs.Query(f)
	response.Write(w, response.OK(map[string]any{
		"entries": entries,
		"count":   len(entries),
	}))
	return nil
}

func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) error {
	response.Write(w, response.OK(s.opts.Logs.Stats()))
	return nil
}

func (s *Server) handleLogExport(w http.ResponseWriter, r *http.Request) error {
	format := reqlog.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = reqlog.FormatJSON
	}

	out, err := s.opts.Logs.Export(format)
	if err != nil {
		return domain.ErrValidation(err.Error())
	}

	switch format {
	case reqlog.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="request-logs.csv"`)
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
	return nil
}

func filterFromQuery(r *http.Request) (reqlog.Filter, error) {
	q := r.URL.Query()
	f := reqlog.Filter{
		TenantID: q.Get("tenant"),
		UserID:   q.Get("user"),
		Method:   q.Get("method"),
		Contains: q.Get("contains"),
	}

	if v := q.Get("status"); v != "" {
		status, err := strconv.Atoi(v)
		if err != nil {
			return f, domain.ErrValidation("status must be an integer")
		}
		f.Status = status
	}
	if v := q.Get("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.ErrValidation("from must be an RFC 3339 timestamp")
		}
		f.From = ts
	}
	if v := q.Get("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.ErrValidation("to must be an RFC 3339 timestamp")
		}
		f.To = ts
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return f, domain.ErrValidation("offset must be a non-negative integer")
		}
		f.Offset = offset
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return f, domain.ErrValidation("limit must be a non-negative integer")
		}
		f.Limit = limit
	}
	return f, nil
}
