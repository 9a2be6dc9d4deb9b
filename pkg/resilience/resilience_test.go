package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/faults"
)

func fastPolicy(maxRetries int) *Policy {
	return NewPolicy(RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	}, nil)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("model", BreakerConfig{FailureThreshold: 5, RecoveryTimeout: time.Hour})

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow())
		b.Record(false)
		assert.Equal(t, CircuitClosed, b.State())
	}

	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, CircuitOpen, b.State())

	err := b.Allow()
	var circuitErr *CircuitError
	require.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, CircuitOpen, circuitErr.State)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("model", DefaultBreakerConfig)

	for i := 0; i < 4; i++ {
		require.NoError(t, b.Allow())
		b.Record(false)
	}
	require.NoError(t, b.Allow())
	b.Record(true)
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b := NewBreaker("storage", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.Record(false)
	require.Equal(t, CircuitOpen, b.State())

	time.Sleep(20 * time.Millisecond)

	// First call after the recovery window becomes the trial.
	require.NoError(t, b.Allow())
	assert.Equal(t, CircuitHalfOpen, b.State())

	// A second concurrent call is rejected while the trial is in flight.
	err := b.Allow()
	var circuitErr *CircuitError
	require.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, CircuitHalfOpen, circuitErr.State)

	// Trial success closes the circuit.
	b.Record(true)
	assert.Equal(t, CircuitClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("storage", BreakerConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	require.NoError(t, b.Allow())
	b.Record(false)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, CircuitOpen, b.State())

	// Recovery timer restarted; immediately rejected again.
	require.Error(t, b.Allow())
}

func TestBreakerSetNotifiesOnOpen(t *testing.T) {
	s := NewBreakerSet(BreakerConfig{FailureThreshold: 2, RecoveryTimeout: 10 * time.Millisecond})

	var opened []string
	s.OnOpen(func(endpoint string) { opened = append(opened, endpoint) })

	b := s.Get("model")
	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Record(false)
	}
	assert.Equal(t, []string{"model"}, opened)

	// A failed half-open trial reopens and notifies again.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.Record(false)
	assert.Equal(t, []string{"model", "model"}, opened)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	inv := NewInvoker(fastPolicy(3), NewBreakerSet(DefaultBreakerConfig))

	calls := 0
	result, err := Do(context.Background(), inv, "model", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", faults.New(faults.KindTransient, "timeout")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnTerminalError(t *testing.T) {
	inv := NewInvoker(fastPolicy(3), NewBreakerSet(DefaultBreakerConfig))

	calls := 0
	_, err := Do(context.Background(), inv, "model", func(context.Context) (string, error) {
		calls++
		return "", faults.New(faults.KindTerminal, "bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, faults.KindTerminal, faults.KindOf(err))
}

func TestDoExhaustsRetries(t *testing.T) {
	inv := NewInvoker(fastPolicy(3), NewBreakerSet(DefaultBreakerConfig))

	calls := 0
	_, err := Do(context.Background(), inv, "model", func(context.Context) (string, error) {
		calls++
		return "", faults.New(faults.KindTransient, "connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial + 3 retries
	assert.Equal(t, faults.KindTransient, faults.KindOf(err))
	assert.Contains(t, err.Error(), "after 3 retries")
}

func TestDoShortCircuitsWithoutIO(t *testing.T) {
	inv := NewInvoker(fastPolicy(0), NewBreakerSet(BreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour}))

	for i := 0; i < 2; i++ {
		_, _ = Do(context.Background(), inv, "flaky", func(context.Context) (int, error) {
			return 0, faults.New(faults.KindTransient, "timeout")
		})
	}

	calls := 0
	_, err := Do(context.Background(), inv, "flaky", func(context.Context) (int, error) {
		calls++
		return 0, nil
	})

	var circuitErr *CircuitError
	require.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, 0, calls, "open circuit must not attempt I/O")
}

func TestDoCountsOnlyTransientFailuresAgainstCircuit(t *testing.T) {
	breakers := NewBreakerSet(BreakerConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})
	inv := NewInvoker(fastPolicy(0), breakers)

	// Terminal errors pass through without penalizing the endpoint.
	for i := 0; i < 10; i++ {
		_, err := Do(context.Background(), inv, "validator", func(context.Context) (int, error) {
			return 0, faults.New(faults.KindTerminal, "invalid argument")
		})
		require.Error(t, err)
	}
	assert.Equal(t, CircuitClosed, breakers.Get("validator").State())
	assert.Equal(t, 0, breakers.Get("validator").Failures())

	calls := 0
	result, err := Do(context.Background(), inv, "validator", func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	inv := NewInvoker(NewPolicy(RetryConfig{
		MaxRetries:    5,
		InitialDelay:  time.Hour,
		MaxDelay:      time.Hour,
		BackoffFactor: 2.0,
	}, nil), NewBreakerSet(DefaultBreakerConfig))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, inv, "model", func(context.Context) (int, error) {
		return 0, faults.New(faults.KindTransient, "timeout")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestShouldRetryExcludesCircuitErrors(t *testing.T) {
	assert.False(t, ShouldRetry(&CircuitError{Endpoint: "model", State: CircuitOpen}))
	assert.True(t, ShouldRetry(faults.New(faults.KindTransient, "timeout")))
	assert.False(t, ShouldRetry(faults.New(faults.KindTerminal, "auth")))
}
