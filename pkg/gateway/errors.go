package gateway

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRequestFailed matches every *RequestError via errors.Is.
	ErrRequestFailed = errors.New("request failed")

	// ErrDecode is returned when a 200 response body cannot be decoded.
	ErrDecode = errors.New("decode response")
)

// RequestError is returned for any request that did not end in HTTP 200.
// Transport failures have StatusCode 0 and a non-nil Err.
type RequestError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed: %s %s: %v", e.Method, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("request failed: %s %s (status %d): %s",
		e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRequestFailed.
func (e *RequestError) Is(target error) bool {
	return target == ErrRequestFailed
}
