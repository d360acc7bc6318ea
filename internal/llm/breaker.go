package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerClient stops calling an unhealthy provider for a cool-down period so
// chat requests fail fast to their fixed fallbacks.
type BreakerClient struct {
	inner ChatClient
	cb    *gobreaker.CircuitBreaker[ChatResponse]
}

// BreakerSettings tunes the breaker; zero values use the defaults below.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	OnStateChange    func(name string, state gobreaker.State)
}

func NewBreakerClient(inner ChatClient, s BreakerSettings) *BreakerClient {
	if s.Name == "" {
		s.Name = "llm"
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	threshold := s.FailureThreshold
	notify := s.OnStateChange

	settings := gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Callers giving up is not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if notify != nil {
		settings.OnStateChange = func(name string, _, to gobreaker.State) {
			notify(name, to)
		}
	}
	return &BreakerClient{inner: inner, cb: gobreaker.NewCircuitBreaker[ChatResponse](settings)}
}

func (c *BreakerClient) Complete(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return c.cb.Execute(func() (ChatResponse, error) {
		return c.inner.Complete(ctx, req)
	})
}

// State reports the current breaker state.
func (c *BreakerClient) State() gobreaker.State {
	return c.cb.State()
}
