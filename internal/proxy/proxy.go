// Package proxy dispatches matched path prefixes to named downstream
// business services. The downstreams themselves are opaque HTTP targets;
// the gateway forwards requests unchanged and maps transport failures to a
// 502 envelope.
package proxy

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/clearledger/gateway/internal/requestid"
	"github.com/clearledger/gateway/internal/response"
)

// Route maps a path prefix to a downstream service.
type Route struct {
	Prefix  string
	Service string
	Target  *url.URL

	handler http.Handler
}

// Router matches inbound paths against the route table, longest prefix
// first, and forwards to the owning downstream.
type Router struct {
	routes []*Route
	logger *slog.Logger
}

// New builds a router from the route table.
func New(routes []Route, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{logger: logger}
	for i := range routes {
		rt := routes[i]
		if rt.Prefix == "" || rt.Target == nil {
			return nil, fmt.Errorf("route %q: prefix and target are required", rt.Service)
		}
		rt.handler = r.forwarder(&rt)
		r.routes = append(r.routes, &rt)
	}
	// Longest prefix wins.
	sort.Slice(r.routes, func(i, j int) bool {
		return len(r.routes[i].Prefix) > len(r.routes[j].Prefix)
	})
	return r, nil
}

// Match returns the route owning the path, or nil.
func (r *Router) Match(path string) *Route {
	for _, rt := range r.routes {
		if strings.HasPrefix(path, rt.Prefix) {
			return rt
		}
	}
	return nil
}

// ServeHTTP dispatches to the matched downstream, or renders the terminal
// 404 envelope for unrouted paths.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rt := r.Match(req.URL.Path)
	if rt == nil {
		NotFoundHandler(w, req)
		return
	}
	rt.handler.ServeHTTP(w, req)
}

// NotFoundHandler renders the uniform envelope for unmatched routes.
func NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	response.Write(w, response.NotFound(
		"NOT_FOUND",
		fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
		nil,
	))
}

// MethodNotAllowedHandler renders the uniform envelope for known routes
// hit with an unsupported method.
func MethodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	response.Write(w, response.MethodNotAllowed(
		"METHOD_NOT_ALLOWED",
		fmt.Sprintf("Method %s not allowed for %s", r.Method, r.URL.Path),
		nil,
	))
}

func (r *Router) forwarder(rt *Route) http.Handler {
	rp := httputil.NewSingleHostReverseProxy(rt.Target)
	rp.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		r.logger.Error("downstream unreachable",
			slog.String("service", rt.Service),
			slog.String("target", rt.Target.String()),
			slog.String("request_id", requestid.FromContext(req.Context())),
			slog.String("error", err.Error()),
		)
		response.Write(w, response.BadGateway(
			"BAD_GATEWAY",
			fmt.Sprintf("Service %s is unavailable", rt.Service),
			nil,
		))
	}
	return rp
}
