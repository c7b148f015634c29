package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/gateway/internal/response"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestLongestPrefixMatch(t *testing.T) {
	r, err := New([]Route{
		{Prefix: "/api", Service: "catchall", Target: mustURL(t, "http://a.internal")},
		{Prefix: "/api/invoices", Service: "invoicing", Target: mustURL(t, "http://b.internal")},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "invoicing", r.Match("/api/invoices/42").Service)
	assert.Equal(t, "catchall", r.Match("/api/bills").Service)
	assert.Nil(t, r.Match("/health"))
}

func TestForwardsToDownstream(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/invoices/42", r.URL.Path)
		assert.Equal(t, "t1", r.Header.Get("X-Tenant-ID"), "request forwarded unchanged")
		w.WriteHeader(http.StatusCreated)
	}))
	defer downstream.Close()

	r, err := New([]Route{
		{Prefix: "/api/invoices", Service: "invoicing", Target: mustURL(t, downstream.URL)},
	}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/api/invoices/42", nil)
	req.Header.Set("X-Tenant-ID", "t1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDownstreamFailureIsBadGateway(t *testing.T) {
	// A port nothing listens on.
	r, err := New([]Route{
		{Prefix: "/api/invoices", Service: "invoicing", Target: mustURL(t, "http://127.0.0.1:1")},
	}, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/invoices", nil))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BAD_GATEWAY", resp.Error.Code)
}

func TestUnmatchedPathIs404Envelope(t *testing.T) {
	r, err := New(nil, nil)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("DELETE", "/api/nowhere", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "Route DELETE /api/nowhere not found", resp.Error.Message)
}

func TestRouteValidation(t *testing.T) {
	_, err := New([]Route{{Service: "broken"}}, nil)
	assert.Error(t, err)
}
