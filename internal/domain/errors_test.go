package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveTaxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", ErrValidation("bad tenant id"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unauthorized", ErrUnauthorized("missing credentials"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"forbidden", ErrForbidden("wrong tenant"), http.StatusForbidden, "FORBIDDEN"},
		{"notFound", ErrNotFound("no such invoice"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", ErrConflict("stale write"), http.StatusConflict, "CONFLICT"},
		{"rateLimit", ErrRateLimit("slow down"), http.StatusTooManyRequests, "TOO_MANY_REQUESTS"},
		{"internal", ErrInternal("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Resolve(tt.err)
			assert.Equal(t, tt.wantStatus, rec.StatusCode)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.err.(*APIError).Message, rec.Message)
		})
	}
}

func TestResolveUnknownErrorIsOpaque(t *testing.T) {
	rec := Resolve(errors.New("pg: connection to shard 3 refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.StatusCode)
	assert.Equal(t, "INTERNAL_ERROR", rec.Code)
	assert.Equal(t, "An unexpected error occurred", rec.Message)
	assert.NotContains(t, rec.Message, "shard")
}

func TestResolveWrappedError(t *testing.T) {
	err := fmt.Errorf("loading invoice: %w", ErrNotFound("invoice 42 not found"))
	rec := Resolve(err)
	assert.Equal(t, http.StatusNotFound, rec.StatusCode)
	assert.Equal(t, "invoice 42 not found", rec.Message)
}

func TestOverrides(t *testing.T) {
	err := ErrValidation("ledger period closed").
		WithCode("PERIOD_CLOSED").
		WithStatusCode(http.StatusUnprocessableEntity)
	rec := Resolve(err)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.StatusCode)
	assert.Equal(t, "PERIOD_CLOSED", rec.Code)
	assert.Equal(t, ErrorKindValidation, rec.Kind)
}

func TestErrorString(t *testing.T) {
	err := ErrRateLimit("window exhausted")
	assert.Equal(t, "rate_limit (TOO_MANY_REQUESTS): window exhausted", err.Error())
}
