package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/clearledger/gateway/internal/domain"
	"github.com/clearledger/gateway/internal/requestid"
	"github.com/clearledger/gateway/internal/response"
)

// Handler is an http.HandlerFunc that may return an error. Returned errors
// propagate unmodified to the terminal error handler; handlers never render
// error envelopes themselves.
type Handler func(w http.ResponseWriter, r *http.Request) error

// handle adapts a Handler, routing any returned error through the taxonomy.
func (s *Server) handle(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

// writeError is the terminal error handler: resolve through the taxonomy,
// attach request context as details, log (stack and cause stay in the logs,
// never in the body), render the envelope. It never re-throws.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rec := domain.Resolve(err)

	details := map[string]any{
		"requestId": requestid.FromContext(r.Context()),
		"path":      r.URL.Path,
		"method":    r.Method,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if tenant := r.Header.Get("X-Tenant-ID"); tenant != "" {
		details["tenantId"] = tenant
	}
	if user := r.Header.Get("X-User-ID"); user != "" {
		details["userId"] = user
	}

	attrs := []any{
		slog.String("request_id", requestid.FromContext(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("kind", string(rec.Kind)),
		slog.Int("status", rec.StatusCode),
		slog.String("error", err.Error()),
	}
	if rec.StatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed", attrs...)
	} else {
		s.logger.Warn("request failed", attrs...)
	}

	resp := response.New(rec.StatusCode, nil, "")
	resp.Error = &response.ErrorBody{Code: rec.Code, Message: rec.Message, Details: details}
	response.Write(w, resp)
}

// recoverer converts panics from later stages into internal-error envelopes
// through the same terminal handler. The stack goes to the log only, and
// only when the debug flag is set.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				if s.debug {
					s.logger.Error("panic recovered",
						slog.String("request_id", requestid.FromContext(r.Context())),
						slog.String("stack", string(debug.Stack())),
					)
				}
				s.writeError(w, r, fmt.Errorf("panic: %v", rv))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authGate validates that the identity headers are present before any
// business routing. Token verification itself belongs to the external
// identity service; only presence is checked here.
func (s *Server) authGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			s.writeError(w, r, domain.ErrUnauthorized("Missing Authorization header"))
			return
		}
		if r.Header.Get("X-Tenant-ID") == "" {
			s.writeError(w, r, domain.ErrUnauthorized("Missing X-Tenant-ID header"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// securityHeaders sets the baseline hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware answers preflight and stamps allow headers for configured
// origins. An empty allowlist disables CORS entirely.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	wildcard := false
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || allowed[origin]) {
				h := w.Header()
				if wildcard {
					h.Set("Access-Control-Allow-Origin", "*")
				} else {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Vary", "Origin")
				}
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers",
					strings.Join([]string{"Authorization", "Content-Type", "X-Tenant-ID", "X-User-ID", "X-Request-ID"}, ", "))
				h.Set("Access-Control-Max-Age", "600")
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bodyLimit rejects oversized payloads up front and caps what later stages
// can read.
func bodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				response.Write(w, response.New(http.StatusRequestEntityTooLarge, nil,
					"Request body exceeds the allowed size"))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
