// Package response provides the uniform envelope every gateway reply is
// wrapped in, plus a constructor per standard HTTP outcome.
package response

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope returned for every request, success or failure.
// Success is always derived from the status code and never set directly, so
// the two can never disagree.
type Response struct {
	Success bool       `json:"success"`
	Status  int        `json:"status"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries the machine-readable error portion of a failed envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// New builds an envelope for an arbitrary status. Status codes below 400
// populate Data; the rest populate Error.
func New(status int, data any, message string) Response {
	if status < http.StatusBadRequest {
		return Response{Success: true, Status: status, Message: message, Data: data}
	}
	return Response{
		Success: false,
		Status:  status,
		Error:   &ErrorBody{Code: defaultCode(status), Message: message},
	}
}

func success(status int, data any, message ...string) Response {
	r := Response{Success: true, Status: status, Data: data}
	if len(message) > 0 {
		r.Message = message[0]
	}
	return r
}

func failure(status int, code, message string, details any) Response {
	if code == "" {
		code = defaultCode(status)
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return Response{
		Success: false,
		Status:  status,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
	}
}

// OK returns a 200 envelope.
func OK(data any, message ...string) Response {
	return success(http.StatusOK, data, message...)
}

// Created returns a 201 envelope.
func Created(data any, message ...string) Response {
	return success(http.StatusCreated, data, message...)
}

// Accepted returns a 202 envelope.
func Accepted(data any, message ...string) Response {
	return success(http.StatusAccepted, data, message...)
}

// NoContent returns a 204 envelope. The body is still rendered because the
// envelope itself is the contract; callers that want a truly empty body
// should write the status code directly.
func NoContent(message ...string) Response {
	return success(http.StatusNoContent, nil, message...)
}

// BadRequest returns a 400 envelope.
func BadRequest(code, message string, details any) Response {
	return failure(http.StatusBadRequest, code, message, details)
}

// Unauthorized returns a 401 envelope.
func Unauthorized(code, message string, details any) Response {
	return failure(http.StatusUnauthorized, code, message, details)
}

// Forbidden returns a 403 envelope.
func Forbidden(code, message string, details any) Response {
	return failure(http.StatusForbidden, code, message, details)
}

// NotFound returns a 404 envelope.
func NotFound(code, message string, details any) Response {
	return failure(http.StatusNotFound, code, message, details)
}

// MethodNotAllowed returns a 405 envelope.
func MethodNotAllowed(code, message string, details any) Response {
	return failure(http.StatusMethodNotAllowed, code, message, details)
}

// Conflict returns a 409 envelope.
func Conflict(code, message string, details any) Response {
	return failure(http.StatusConflict, code, message, details)
}

// UnprocessableEntity returns a 422 envelope.
func UnprocessableEntity(code, message string, details any) Response {
	return failure(http.StatusUnprocessableEntity, code, message, details)
}

// TooManyRequests returns a 429 envelope.
func TooManyRequests(code, message string, details any) Response {
	return failure(http.StatusTooManyRequests, code, message, details)
}

// InternalServerError returns a 500 envelope.
func InternalServerError(code, message string, details any) Response {
	return failure(http.StatusInternalServerError, code, message, details)
}

// BadGateway returns a 502 envelope.
func BadGateway(code, message string, details any) Response {
	return failure(http.StatusBadGateway, code, message, details)
}

// ServiceUnavailable returns a 503 envelope.
func ServiceUnavailable(code, message string, details any) Response {
	return failure(http.StatusServiceUnavailable, code, message, details)
}

// GatewayTimeout returns a 504 envelope.
func GatewayTimeout(code, message string, details any) Response {
	return failure(http.StatusGatewayTimeout, code, message, details)
}

// Write renders the envelope as JSON with its status code.
func Write(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	// Encoding the envelope cannot fail for the types we put in it; if a
	// handler smuggles in an unmarshalable Data value the client gets a
	// truncated body and the error surfaces in the server log via the
	// http.Server ErrorLog, which is the best we can do post-WriteHeader.
	_ = json.NewEncoder(w).Encode(resp)
}

func defaultCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusBadGateway:
		return "BAD_GATEWAY"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}
