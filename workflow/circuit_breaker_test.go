package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		HalfOpenMax:      1,
	}, nil)

	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     time.Minute,
		HalfOpenMax:      1,
	}, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenMax:      2,
	}, nil)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	// Two successful probes close the breaker.
	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		HalfOpenMax:      1,
	}, nil)

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_ExecuteRejectsWhenOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		HalfOpenMax:      1,
	}, nil)

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return nil, assert.AnError
	})
	require.Error(t, err)

	_, err = cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		return "never", nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerExecutor(t *testing.T) {
	exec := NewBreakerExecutor(failingExecutor("flaky"), BreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		HalfOpenMax:      1,
	}, nil)

	assert.Equal(t, "flaky", exec.Name())

	_, err := exec.Execute(context.Background(), "x")
	require.Error(t, err)
	_, err = exec.Execute(context.Background(), "x")
	require.Error(t, err)

	_, err = exec.Execute(context.Background(), "x")
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, StateOpen, exec.Breaker().State())
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
