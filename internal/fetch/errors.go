package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when the server answers 404
	ErrNotFound = errors.New("not found")

	// ErrDisallowed is returned when robots.txt forbids the URL for our user agent
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrTooLarge is returned when a body exceeds the configured byte limit
	ErrTooLarge = errors.New("response body too large")
)

// StatusError reports a non-success HTTP status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Is lets errors.Is(err, ErrNotFound) match a 404
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether retrying may help: 5xx, 408 and 429
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// retryable classifies an attempt error. Transport errors are retried;
// robots refusals, oversize bodies, bad requests and 4xx statuses are not.
func retryable(err error) bool {
	if errors.Is(err, ErrDisallowed) || errors.Is(err, ErrTooLarge) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var re *requestError
	return !errors.As(err, &re)
}

// requestError wraps failures building a request, which retries cannot fix
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }
