package client

import (
	"fmt"
	"net/http"

	"github.com/MJE43/rps-commit-reveal/internal/api"
)

// APIError is a non-2xx response from the daemon. Engine carries the decoded
// error body when the daemon produced one.
type APIError struct {
	StatusCode int
	Engine     api.EngineError
	Body       string
}

func (e *APIError) Error() string {
	if e.Engine.Type != "" {
		return fmt.Sprintf("rps: HTTP %d: %s: %s", e.StatusCode, e.Engine.Type, e.Engine.Message)
	}
	return fmt.Sprintf("rps: HTTP %d: %s", e.StatusCode, e.Body)
}

// Type returns the engine error type, e.g. "hash_mismatch".
func (e *APIError) Type() string { return e.Engine.Type }

// IsRetryable returns true for server errors and gateway timeouts.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsConflict reports a phase or ownership conflict, such as committing twice.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

// IsTooEarly reports a deadline that has not passed yet.
func (e *APIError) IsTooEarly() bool {
	return e.StatusCode == http.StatusTooEarly
}
