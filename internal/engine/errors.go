package engine

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEmptyIdea is returned when the idea text is empty or whitespace only.
var ErrEmptyIdea = errors.New("idea text is empty")

// ErrTranscriptUnavailable marks a video without a usable caption track.
// It is soft: callers annotate the result and move on.
var ErrTranscriptUnavailable = errors.New("transcript unavailable")

// QuotaExceededError is returned when an API call would exceed the daily budget,
// either locally (ledger check) or remotely (API reported exhaustion).
type QuotaExceededError struct {
	Operation Operation
	Cost      int
	Remaining int
	ResetAt   time.Time
	Remote    bool
}

func (e *QuotaExceededError) Error() string {
	src := "local ledger"
	if e.Remote {
		src = "api"
	}
	return fmt.Sprintf("quota exceeded (%s): %s needs %d units, %d remaining, resets at %s",
		src, e.Operation, e.Cost, e.Remaining, e.ResetAt.UTC().Format(time.RFC3339))
}

// InvalidCredentialError is returned when the API rejects the credential.
type InvalidCredentialError struct {
	StatusCode int
	Reason     string
}

func (e *InvalidCredentialError) Error() string {
	return fmt.Sprintf("invalid api credential (%d %s)", e.StatusCode, e.Reason)
}

// TransientAPIError is a retryable failure: timeouts, connection resets, 5xx.
type TransientAPIError struct {
	Operation  Operation
	StatusCode int
	Err        error
}

func (e *TransientAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient api error %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient api error: %v", e.Operation, e.Err)
}

func (e *TransientAPIError) Unwrap() error { return e.Err }

// APIError is a permanent API failure that is neither quota nor credential related.
type APIError struct {
	Operation  Operation
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: api error %d (%s): %s", e.Operation, e.StatusCode, e.Reason, msg)
	}
	return fmt.Sprintf("%s: api error %d: %s", e.Operation, e.StatusCode, msg)
}

// IsQuotaExceeded reports whether err carries a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// IsInvalidCredential reports whether err carries an InvalidCredentialError.
func IsInvalidCredential(err error) bool {
	var ce *InvalidCredentialError
	return errors.As(err, &ce)
}
