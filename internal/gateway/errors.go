package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind buckets an upstream failure for alerting and degradation
// decisions.
type ErrorKind string

const (
	// KindNotFound is benign at several call sites; logged, never alerted.
	KindNotFound ErrorKind = "not_found"
	// KindRateLimited means the provider quota is exhausted; requires
	// explicit user action, no automatic backoff.
	KindRateLimited ErrorKind = "rate_limited"
	// KindAuthFailed usually requires reconfiguring the token.
	KindAuthFailed ErrorKind = "auth_failed"
	// KindUnprocessable is the provider rejecting a write as a semantic
	// conflict (422), e.g. a ref that already exists. Logged, never
	// alerted; callers often tolerate it.
	KindUnprocessable ErrorKind = "unprocessable"
	// KindGeneric covers every other non-success status.
	KindGeneric ErrorKind = "generic"
	// KindNetwork is a transport-level failure, distinct from any HTTP
	// status.
	KindNetwork ErrorKind = "network"
)

// APIError is the typed failure the gateway raises for any call that
// did not produce a usable response. Callers decide whether it is fatal
// to their own operation or a cue to degrade.
type APIError struct {
	Kind    ErrorKind
	Status  int
	URL     string
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("api %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("api %s: %s", e.Kind, e.Message)
}

// KindOf extracts the ErrorKind from an error chain, or KindGeneric
// for foreign errors.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindGeneric
}

// IsNotFound reports whether err is a suppressible 404.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnprocessable reports whether err is a 422 semantic conflict.
func IsUnprocessable(err error) bool {
	return KindOf(err) == KindUnprocessable
}
