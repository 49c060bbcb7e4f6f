package http

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (500, 502, 503, throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates client errors that should not be retried (400, 404, invalid request)
	ErrorTypeFatal
)

// ClassifyError determines the error type for retry strategy.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	errStr := strings.ToLower(err.Error())

	// Network errors - retryable per the schedule
	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	// Server-side transient errors and throttling
	if strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeRetryable
	}

	// Client errors - don't retry
	if strings.Contains(errStr, "400") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "409") ||
		strings.Contains(errStr, "invalid") {
		return ErrorTypeFatal
	}

	// Unknown errors - retry them; the schedule is short and bounded, and
	// partial transfers are cheaper to retry than to fail spuriously.
	return ErrorTypeRetryable
}

// ExecuteWithSchedule runs an operation under a fixed ordered retry
// schedule: one initial attempt, then one retry per delay in order.
// Exhausting the schedule returns the last error; fatal errors and context
// cancellation return immediately.
//
// With the default schedule {0, 1s, 3s, 5s} an operation is attempted at
// most five times.
func ExecuteWithSchedule(ctx context.Context, delays []time.Duration, operation func() error) error {
	var lastErr error

	totalAttempts := len(delays) + 1
	for attempt := 0; attempt < totalAttempts; attempt++ {
		if attempt > 0 {
			delay := delays[attempt-1]
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if ClassifyError(err) == ErrorTypeFatal {
			return err
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", totalAttempts, lastErr)
}

// ErrorTypeName returns a human-readable name for an ErrorType.
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
