package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrTransport wraps network, TLS and DNS failures.
	ErrTransport = errors.New("transport error")

	// ErrDecode is returned when a listing body does not have the expected shape.
	ErrDecode = errors.New("decode error")

	// ErrApplication is the target of every *APIError.
	ErrApplication = errors.New("application error")

	// ErrRateLimited is returned when the rate limit gate refuses a request
	// because the remote quota for its resource is exhausted.
	ErrRateLimited = errors.New("request blocked: rate limit exhausted")
)

// APIError is a non-success HTTP status returned by GitHub.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	// Body is the response body, kept for diagnostics.
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GitHub %s error (status %d): %s: %s",
			e.ErrorClass, e.StatusCode, e.Message, e.Body)
	}
	return fmt.Sprintf("GitHub %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap lets errors.Is(err, ErrApplication) match any APIError.
func (e *APIError) Unwrap() error {
	return ErrApplication
}

// Cause returns the most useful description of err for a diagnostic line:
// the response body for API errors, the error text otherwise.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Body != "" {
			return apiErr.Body
		}
		return apiErr.Message
	}
	return err.Error()
}

// StatusCode extracts the HTTP status from err, or 0 when there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
