package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clearledger/gateway/internal/response"
)

// Middleware enforces the service's policy around a handler. The three
// X-RateLimit-* headers are set whether the request is admitted or not;
// rejection is handled inline with a 429 envelope, it is not an error that
// propagates to the terminal error handler.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec := s.Check(r.Context(), InfoFromRequest(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(dec.Limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))
		h.Set("X-RateLimit-Reset", dec.ResetAt.UTC().Format(time.RFC3339))

		if !dec.Allowed {
			h.Set("Retry-After", strconv.FormatInt(int64(dec.RetryAfter/time.Second), 10))
			response.Write(w, response.TooManyRequests(
				"RATE_LIMIT_EXCEEDED",
				"Too many requests, please retry later",
				map[string]any{
					"limit":      dec.Limit,
					"retryAfter": int64(dec.RetryAfter / time.Second),
				},
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// InfoFromRequest derives the admission context from standard headers and
// the peer address.
func InfoFromRequest(r *http.Request) RequestInfo {
	return RequestInfo{
		TenantID: r.Header.Get("X-Tenant-ID"),
		UserID:   r.Header.Get("X-User-ID"),
		ClientIP: ClientIP(r),
		Method:   r.Method,
		Path:     r.URL.Path,
	}
}

// ClientIP resolves the caller address, preferring the first hop of
// X-Forwarded-For when present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
