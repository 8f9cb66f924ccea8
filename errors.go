package governor

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	ErrRateLimited     = errors.New("governor: rate limited by upstream")
	ErrUnavailable     = errors.New("governor: upstream unavailable")
	ErrAuthFailed      = errors.New("governor: authentication failed")
	ErrInvalidRequest  = errors.New("governor: invalid request")
	ErrClosed          = errors.New("governor: governor closed")
	ErrUnknownStrategy = errors.New("governor: unknown strategy")
)

// APIError is an error carrying an HTTP-style status from the inference
// endpoint. Work callbacks may return it (or wrap it) to let the governor
// classify the failure.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("governor: api error: status=%d: %s", e.Status, e.Message)
}

// QueueError is the terminal error for a queued item that exhausted its
// retry budget. It wraps the last error observed.
type QueueError struct {
	ID      string
	Model   string
	Retries int
	Err     error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("governor: queued item %s failed: model=%s retries=%d: %v",
		e.ID, e.Model, e.Retries, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

var retryableStatuses = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"unavailable",
	"overloaded",
	"temporarily",
	"try again",
	"socket hang up",
}

// IsRetryable reports whether the error is a transient failure worth
// retrying or cascading to a fallback model: a rate-limit or server-side
// HTTP status, or a message matching known transient-network patterns.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Context termination is the caller's decision, never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatuses[apiErr.Status]
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsFatal reports whether the error should propagate immediately, with no
// retry, fallback, or queueing.
func IsFatal(err error) bool {
	return err != nil && !IsRetryable(err)
}
