package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoServerURL is returned when the client is built without a base URL.
	ErrNoServerURL = errors.New("backend: server URL required")

	// ErrTokenExpired is returned when a cached speech token is past its
	// refresh horizon and no new one could be fetched.
	ErrTokenExpired = errors.New("backend: speech token expired")

	// ErrStreamClosed is returned when reading from a closed chat stream.
	ErrStreamClosed = errors.New("backend: stream closed")
)

// APIError represents a non-2xx response from the backend.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Endpoint names the logical endpoint that failed.
	Endpoint string

	// Message is the response body, truncated for logging.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend [%s]: API error %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}
