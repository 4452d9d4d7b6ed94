package resources

import (
	"errors"
	"fmt"
)

// ErrURINotAllowed marks a fetch target outside the host allow-list.
var ErrURINotAllowed = errors.New("uri not allowed")

// ErrPathTraversal marks a local path that escapes the working directory or
// touches a forbidden location.
var ErrPathTraversal = errors.New("path traversal")

// ErrRateLimited marks a request rejected by the per-host budget. The caller
// decides whether to degrade or fail.
var ErrRateLimited = errors.New("rate limited")

// HTTPStatusError reports a non-2xx, non-404 HTTP response.
type HTTPStatusError struct {
	Code int
	URI  string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d fetching %s", e.Code, e.URI)
}

// FetchError wraps the final failure after all retry attempts.
type FetchError struct {
	URI      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempts: %v", e.URI, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
