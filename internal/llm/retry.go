package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm http status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the provider may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

type retryPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

var defaultRetry = retryPolicy{attempts: 3, base: 250 * time.Millisecond, max: 2 * time.Second}

// delay doubles base per attempt, capped at max.
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	return d
}

// do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	attempts := p.attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		var se *StatusError
		if !errors.As(err, &se) || !se.Retryable() || attempt == attempts-1 {
			return err
		}
		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
