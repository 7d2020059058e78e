package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// StateClosed lets requests through and counts failures.
	StateClosed BreakerState = iota
	// StateOpen rejects requests until the reset timeout elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probes through to test recovery.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open")

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the
	// breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenMax is how many successful probes close the breaker again.
	HalfOpenMax int
}

// DefaultBreakerConfig returns a conservative configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMax:      2,
	}
}

// CircuitBreaker protects an executor from being hammered while it is
// failing. Standard three-state machine: closed -> open on threshold,
// open -> half-open after the reset timeout, half-open -> closed after
// enough successful probes.
type CircuitBreaker struct {
	name   string
	config BreakerConfig
	logger *zap.Logger

	mu            sync.Mutex
	state         BreakerState
	failures      int
	halfOpenHits  int
	lastFailureAt time.Time
}

// NewCircuitBreaker creates a breaker with the given name and config.
func NewCircuitBreaker(name string, config BreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = DefaultBreakerConfig().HalfOpenMax
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("breaker", name)),
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState applies the open -> half-open transition lazily. Caller must
// hold mu.
func (cb *CircuitBreaker) currentState() BreakerState {
	if cb.state == StateOpen && time.Since(cb.lastFailureAt) >= cb.config.ResetTimeout {
		cb.state = StateHalfOpen
		cb.halfOpenHits = 0
		cb.logger.Info("breaker half-open, probing")
	}
	return cb.state
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState() != StateOpen
}

// RecordSuccess registers a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentState() {
	case StateHalfOpen:
		cb.halfOpenHits++
		if cb.halfOpenHits >= cb.config.HalfOpenMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.logger.Info("breaker closed after recovery")
		}
	case StateClosed:
		cb.failures = 0
	}
}

// RecordFailure registers a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureAt = time.Now()

	switch cb.currentState() {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.Warn("probe failed, breaker re-opened")
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.logger.Warn("failure threshold reached, breaker opened",
				zap.Int("failures", cb.failures))
		}
	}
}

// Execute runs fn under the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if !cb.Allow() {
		return nil, fmt.Errorf("%s: %w", cb.name, ErrCircuitOpen)
	}

	result, err := fn(ctx)
	if err != nil {
		cb.RecordFailure()
		return nil, err
	}

	cb.RecordSuccess()
	return result, nil
}

// BreakerExecutor wraps an Executor with a circuit breaker.
type BreakerExecutor struct {
	inner   Executor
	breaker *CircuitBreaker
}

// NewBreakerExecutor decorates exec with breaker protection.
func NewBreakerExecutor(exec Executor, config BreakerConfig, logger *zap.Logger) *BreakerExecutor {
	return &BreakerExecutor{
		inner:   exec,
		breaker: NewCircuitBreaker(exec.Name(), config, logger),
	}
}

func (e *BreakerExecutor) Execute(ctx context.Context, input any) (any, error) {
	return e.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return e.inner.Execute(ctx, input)
	})
}

func (e *BreakerExecutor) Name() string {
	return e.inner.Name()
}

// Breaker exposes the underlying breaker for inspection.
func (e *BreakerExecutor) Breaker() *CircuitBreaker {
	return e.breaker
}
