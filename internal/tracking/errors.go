package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound reports that the requested entity does not exist on the
// tracking server. APIError wraps it for 404 and RESOURCE_DOES_NOT_EXIST
// responses so callers can use errors.Is.
var ErrNotFound = errors.New("tracking: not found")

// APIError is a non-2xx response from the tracking server.
type APIError struct {
	StatusCode int
	ErrorCode  string // MLflow error code, e.g. RESOURCE_DOES_NOT_EXIST
	Message    string
	Method     string
	Path       string
}

func newAPIError(status int, method, path string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Method: method, Path: path}

	// The tracking server returns {"error_code": ..., "message": ...}.
	var payload struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.ErrorCode = payload.ErrorCode
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("tracking: %s %s: %s (%s)", e.Method, e.Path, e.Message, e.ErrorCode)
	}
	return fmt.Sprintf("tracking: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Unwrap maps not-found responses onto ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.IsNotFound() {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether the server said the entity does not exist.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.ErrorCode == "RESOURCE_DOES_NOT_EXIST"
}

// IsRetryable reports whether the request may succeed on retry.
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
