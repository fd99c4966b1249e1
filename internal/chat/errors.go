package chat

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoAPIKey is returned by NewClient when no API key is configured.
	ErrNoAPIKey = errors.New("chat: API key required")

	// ErrNoEndpoint is returned by NewClient when no endpoint is configured.
	ErrNoEndpoint = errors.New("chat: endpoint required")

	// ErrNoDeployment is returned by NewClient when no deployment is configured.
	ErrNoDeployment = errors.New("chat: deployment required")

	// ErrEmptyResponse is returned when the service answers without any content.
	ErrEmptyResponse = errors.New("chat: empty response")

	// ErrUnknownLanguage is returned when language detection gives no usable code.
	ErrUnknownLanguage = errors.New("chat: language not recognised")
)

// APIError is a non-2xx answer from the chat service.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("chat: API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chat: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited reports HTTP 429.
func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// IsUnauthorized reports HTTP 401 or 403, usually a wrong API key.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound reports HTTP 404, usually a wrong deployment name.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode < 600 }

// IsRetryable reports whether the same request may succeed later.
func (e *APIError) IsRetryable() bool { return e.IsRateLimited() || e.IsServerError() }

// RequestError wraps a failure that happened before any status was received.
type RequestError struct {
	Op  string
	Err error
}

func (e *RequestError) Error() string { return fmt.Sprintf("chat: %s: %v", e.Op, e.Err) }
func (e *RequestError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RequestError{Op: op, Err: err}
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
