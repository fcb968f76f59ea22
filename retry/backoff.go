// Package retry provides the exponential backoff used to reconnect
// cross-process bridges after a receive loop fails.
//
// Message delivery to connections is never retried; only the bridge
// subscription is re-established.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Strategy defines the reconnect backoff.
//
// The schedule follows: delay = min(BaseDelay * ExponentialBase^attempt, MaxDelay)
//
// Example with defaults (500ms base, 2.0 exponential, 30s max):
//
//	Attempt 1: 1s
//	Attempt 2: 2s
//	Attempt 3: 4s
//	Attempt 6: 30s (capped)
type Strategy struct {
	MaxAttempts     int           // Consecutive failures before giving up; 0 means never give up
	BaseDelay       time.Duration // Initial delay
	MaxDelay        time.Duration // Delay cap
	ExponentialBase float64       // Backoff multiplier (e.g., 2.0 for doubling)
}

// DefaultStrategy returns the default reconnect strategy:
// 10 consecutive attempts, 500ms→30s exponential backoff.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxAttempts:     10,
		BaseDelay:       500 * time.Millisecond,
		MaxDelay:        30 * time.Second,
		ExponentialBase: 2.0,
	}
}

// CalculateRetryDelay returns the delay before the given attempt.
func (s Strategy) CalculateRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseDelay
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(attemptNumber))

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}

	return time.Duration(delay)
}

// IsRetryable reports whether another attempt is allowed after attemptCount failures.
func (s Strategy) IsRetryable(attemptCount int) bool {
	if s.MaxAttempts <= 0 {
		return true
	}
	return attemptCount < s.MaxAttempts
}

// Wait sleeps for the delay of attemptNumber or until ctx ends.
func (s Strategy) Wait(ctx context.Context, attemptNumber int) error {
	timer := time.NewTimer(s.CalculateRetryDelay(attemptNumber))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GetRetrySchedule returns a human-readable description of the schedule.
// An unlimited strategy lists the first ten attempts.
//
// Example output:
//
//	Reconnect Schedule:
//	  Attempt 1: after 1s
//	  Attempt 2: after 2s
//	  ...
//	  → Give up
func (s Strategy) GetRetrySchedule() string {
	limit := s.MaxAttempts
	if limit <= 0 {
		limit = 10
	}

	schedule := "Reconnect Schedule:\n"
	for i := 1; i <= limit; i++ {
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i, s.CalculateRetryDelay(i))
	}
	if s.MaxAttempts > 0 {
		schedule += "  → Give up\n"
	} else {
		schedule += "  → Keep retrying\n"
	}
	return schedule
}
