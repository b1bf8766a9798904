package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

var (
	ErrCircuitOpen     = gobreaker.ErrOpenState
	ErrTooManyRequests = gobreaker.ErrTooManyRequests
)

// State represents the circuit breaker state
type State = gobreaker.State

const (
	StateClosed   = gobreaker.StateClosed
	StateHalfOpen = gobreaker.StateHalfOpen
	StateOpen     = gobreaker.StateOpen
)

// Counts holds the statistics for the circuit breaker
type Counts = gobreaker.Counts

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxRequests is the number of probes allowed in half-open state
	MaxRequests uint32
	// Interval is the cyclic period of the closed state to clear counts
	Interval time.Duration
	// Timeout is the period of the open state until transitioning to half-open
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker when reached. Ignored if ReadyToTrip is set.
	ConsecutiveFailures uint32
	// ReadyToTrip is called with counts when a request fails in closed state
	ReadyToTrip func(counts Counts) bool
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker guards calls that produce a T. Cancellation by the caller is not
// counted as a failure.
type Breaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a new circuit breaker with the given settings
func New[T any](name string, settings Settings) *Breaker[T] {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		threshold := settings.ConsecutiveFailures
		if threshold == 0 {
			threshold = 5
		}
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		}
	}

	return &Breaker[T]{
		cb: gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
			Name:          name,
			MaxRequests:   settings.MaxRequests,
			Interval:      settings.Interval,
			Timeout:       settings.Timeout,
			ReadyToTrip:   settings.ReadyToTrip,
			OnStateChange: settings.OnStateChange,
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
		}),
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker[T]) Name() string {
	return b.cb.Name()
}

// State returns the current state of the circuit breaker
func (b *Breaker[T]) State() State {
	return b.cb.State()
}

// Counts returns a copy of the internal counts
func (b *Breaker[T]) Counts() Counts {
	return b.cb.Counts()
}

// Execute runs req if the circuit breaker accepts it
func (b *Breaker[T]) Execute(req func() (T, error)) (T, error) {
	return b.cb.Execute(req)
}

// IsOpen reports whether err was produced by a rejecting breaker
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests)
}
