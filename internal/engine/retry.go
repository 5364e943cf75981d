package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"time"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	MaxAttempts int // total attempts including the first
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
	Jitter      float64 // fraction of the wait added at random, 0..1
}

// DefaultRetryConfig is used for YouTube Data API calls.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Multiplier:  2.0,
	Jitter:      0.3,
}

// wait returns the backoff before attempt n+1 (n counts from 0).
func (rc RetryConfig) wait(n int) time.Duration {
	mult := rc.Multiplier
	if mult < 1 {
		mult = 1
	}
	w := time.Duration(float64(rc.InitialWait) * math.Pow(mult, float64(n)))
	if rc.MaxWait > 0 && w > rc.MaxWait {
		w = rc.MaxWait
	}
	if rc.Jitter > 0 {
		w += time.Duration(rand.Float64() * rc.Jitter * float64(w))
	}
	return w
}

// RetryDo runs fn until it succeeds, fails permanently, or MaxAttempts is reached.
// Only transient errors (see IsTransient) are retried; cancellation stops at once.
func RetryDo[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := max(rc.MaxAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) || ctx.Err() != nil {
			return zero, err
		}

		if attempt < attempts-1 {
			wait := rc.wait(attempt)
			metrics.APIRetries.Add(1)
			slog.Debug("retrying", slog.Int("attempt", attempt+1), slog.Duration("wait", wait), slog.Any("error", err))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}
	return zero, lastErr
}

// IsTransient returns true for failures worth retrying: transient API errors,
// connection and DNS failures, and timeouts. Quota and credential errors are
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientAPIError
	if errors.As(err, &te) {
		return true
	}
	var qe *QuotaExceededError
	var ce *InvalidCredentialError
	var ae *APIError
	if errors.As(err, &qe) || errors.As(err, &ce) || errors.As(err, &ae) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// IsRetryableStatus returns true for HTTP status codes that signal a transient
// server-side failure. 429 is excluded: the YouTube API uses it for quota.
func IsRetryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	}
	return false
}
