package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrRefreshExpired reports that the upstream rejected the refresh token
	// itself. This is the only error that destroys session state: recovery
	// requires a fresh external sign-in, not a retry.
	ErrRefreshExpired = errors.New("backend: refresh token expired")

	// ErrNotAuthenticated reports an operation that needs an authenticated
	// session before sign-in has completed.
	ErrNotAuthenticated = errors.New("backend: session is not authenticated")
)

// UpstreamError reports that the backend was reachable but rejected the
// request. It is surfaced to the caller and not retried automatically.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("backend: upstream returned status %d: %s", e.Status, e.Body)
}

// NetworkError reports that the backend was unreachable or the request timed
// out. Transient: safe to retry later without invalidating local state.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
