package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/defi-portfolio-tracker/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means requests are allowed
	StateClosed State = "closed"
	// StateOpen means requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the breaker is probing for recovery
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when the half-open probe budget is exhausted
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxFailures      int           // Consecutive failures before opening
	Timeout          time.Duration // Open duration before probing
	HalfOpenMaxCalls int           // Probe budget in half-open state
}

// DefaultConfig returns the breaker configuration used for upstream
// aggregator calls
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// CircuitBreaker guards an upstream dependency from being hammered while it
// is failing
type CircuitBreaker struct {
	name             string
	maxFailures      int
	timeout          time.Duration
	halfOpenMaxCalls int

	mu               sync.Mutex
	state            State
	consecutiveFails int
	halfOpenCalls    int
	halfOpenSuccess  int
	lastStateChange  time.Time
}

// New creates a circuit breaker in the closed state
func New(config *Config) *CircuitBreaker {
	return &CircuitBreaker{
		name:             config.Name,
		maxFailures:      config.MaxFailures,
		timeout:          config.Timeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// Execute runs fn under circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) > cb.timeout {
			cb.setState(StateHalfOpen)
			logging.WithFields(map[string]interface{}{
				"circuitBreaker": cb.name,
				"state":          StateHalfOpen,
			}).Info("Circuit breaker transitioning to half-open")
			cb.halfOpenCalls++
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrTooManyRequests
		}
		cb.halfOpenCalls++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen {
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.halfOpenMaxCalls {
			cb.setState(StateClosed)
			logging.WithFields(map[string]interface{}{
				"circuitBreaker": cb.name,
				"state":          StateClosed,
			}).Info("Circuit breaker closed after recovery")
		}
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.consecutiveFails++

	switch cb.state {
	case StateClosed:
		if cb.consecutiveFails >= cb.maxFailures {
			cb.setState(StateOpen)
			logging.WithFields(map[string]interface{}{
				"circuitBreaker":   cb.name,
				"state":            StateOpen,
				"consecutiveFails": cb.consecutiveFails,
			}).Warn("Circuit breaker opened due to failures")
		}

	case StateHalfOpen:
		cb.setState(StateOpen)
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": cb.name,
			"state":          StateOpen,
		}).Warn("Circuit breaker reopened after failed probe")
	}
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
	if state == StateHalfOpen {
		cb.halfOpenCalls = 0
		cb.halfOpenSuccess = 0
	}
	if state == StateClosed {
		cb.consecutiveFails = 0
	}
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset manually closes the breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
}
