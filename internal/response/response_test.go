package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessDerivedFromStatus(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{"ok", OK(map[string]string{"id": "1"})},
		{"created", Created(nil, "saved")},
		{"accepted", Accepted(nil)},
		{"noContent", NoContent()},
		{"badRequest", BadRequest("", "", nil)},
		{"unauthorized", Unauthorized("", "", nil)},
		{"forbidden", Forbidden("", "", nil)},
		{"notFound", NotFound("", "", nil)},
		{"methodNotAllowed", MethodNotAllowed("", "", nil)},
		{"conflict", Conflict("", "", nil)},
		{"unprocessable", UnprocessableEntity("", "", nil)},
		{"tooMany", TooManyRequests("", "", nil)},
		{"internal", InternalServerError("", "", nil)},
		{"badGateway", BadGateway("", "", nil)},
		{"unavailable", ServiceUnavailable("", "", nil)},
		{"gatewayTimeout", GatewayTimeout("", "", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.resp.Status < 400, tt.resp.Success)
			if tt.resp.Success {
				assert.Nil(t, tt.resp.Error)
			} else {
				require.NotNil(t, tt.resp.Error)
				assert.Nil(t, tt.resp.Data)
				assert.NotEmpty(t, tt.resp.Error.Code)
				assert.NotEmpty(t, tt.resp.Error.Message)
			}
		})
	}
}

func TestErrorDefaults(t *testing.T) {
	resp := NotFound("", "", nil)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "Not Found", resp.Error.Message)

	resp = NotFound("INVOICE_MISSING", "Invoice not found", map[string]string{"id": "42"})
	assert.Equal(t, "INVOICE_MISSING", resp.Error.Code)
	assert.Equal(t, "Invoice not found", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestNewDerivesSide(t *testing.T) {
	assert.True(t, New(302, nil, "").Success)
	assert.False(t, New(400, nil, "").Success)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", New(413, nil, "").Error.Code)
}

func TestWriteRendersJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, OK(map[string]string{"id": "7"}, "fetched"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "fetched", got.Message)
	assert.Equal(t, map[string]any{"id": "7"}, got.Data)
}

func TestEnvelopeOmitsEmptyFields(t *testing.T) {
	raw, err := json.Marshal(OK(nil))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "message")
	assert.NotContains(t, string(raw), "error")
	assert.NotContains(t, string(raw), "data")
}
