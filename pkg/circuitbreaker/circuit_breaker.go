package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the state of a circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is matched by errors.Is for every rejection by an open breaker.
var ErrOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to an external service. After maxFailures
// consecutive failures it rejects calls for timeout, then lets up to
// halfOpenMaxCalls probes through; one failed probe reopens it and
// halfOpenMaxCalls successful probes close it.
type CircuitBreaker struct {
	name             string
	maxFailures      uint32
	timeout          time.Duration
	halfOpenMaxCalls uint32

	// isFailure decides which errors count against the breaker.
	isFailure func(error) bool
	now       func() time.Time

	mu               sync.Mutex
	state            State
	failures         uint32
	openedAt         time.Time
	halfOpenInFlight uint32
	halfOpenSuccess  uint32
	requests         uint64
	rejected         uint64

	logger *logrus.Logger
}

// Option customizes a breaker.
type Option func(*CircuitBreaker)

// WithFailurePredicate limits which errors count as failures. Context
// cancellation never counts.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// WithHalfOpenMaxCalls sets how many probes are admitted while half-open
func WithHalfOpenMaxCalls(n uint32) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.halfOpenMaxCalls = n
		}
	}
}

// New creates a new circuit breaker
func New(name string, maxFailures uint32, timeout time.Duration, logger *logrus.Logger, opts ...Option) *CircuitBreaker {
	if maxFailures == 0 {
		maxFailures = 1
	}
	if logger == nil {
		logger = logrus.New()
	}
	cb := &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		timeout:          timeout,
		halfOpenMaxCalls: 1,
		isFailure:        func(err error) bool { return err != nil },
		now:              time.Now,
		state:            StateClosed,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn if the breaker admits the call and records its outcome
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.requests++
	cb.advance()

	switch cb.state {
	case StateOpen:
		cb.rejected++
		return &CircuitBreakerError{Name: cb.name, State: StateOpen}
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.halfOpenMaxCalls {
			cb.rejected++
			return &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
		}
		cb.halfOpenInFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil && !errors.Is(err, context.Canceled) && cb.isFailure(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		if failed {
			cb.trip()
			return
		}
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.halfOpenMaxCalls {
			cb.state = StateClosed
			cb.failures = 0
			cb.halfOpenInFlight = 0
			cb.halfOpenSuccess = 0
			cb.logger.WithFields(logrus.Fields{
				"circuit_breaker": cb.name,
				"state":           StateClosed.String(),
			}).Info("Circuit breaker closed after successful recovery")
		}
	}
}

// advance moves an open breaker to half-open once the timeout elapsed.
// Caller holds mu.
func (cb *CircuitBreaker) advance() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = 0
		cb.halfOpenSuccess = 0
		cb.logger.WithFields(logrus.Fields{
			"circuit_breaker": cb.name,
			"state":           StateHalfOpen.String(),
		}).Info("Circuit breaker transitioned to half-open")
	}
}

// trip transitions the circuit breaker to the open state. Caller holds mu.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.halfOpenInFlight = 0
	cb.halfOpenSuccess = 0
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failures,
		"state":           StateOpen.String(),
	}).Warn("Circuit breaker opened due to failures")
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.advance()
	return cb.state
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:     cb.name,
		State:    cb.state,
		Failures: cb.failures,
		Requests: cb.requests,
		Rejected: cb.rejected,
		OpenedAt: cb.openedAt,
	}
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name     string
	State    State
	Failures uint32
	Requests uint64
	Rejected uint64
	OpenedAt time.Time
}

// CircuitBreakerError represents an error when the circuit breaker rejects a call
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// Is makes errors.Is(err, ErrOpen) true for breaker rejections
func (e *CircuitBreakerError) Is(target error) bool {
	return target == ErrOpen
}

// IsCircuitBreakerError checks if an error is a circuit breaker error
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}
