package resilience

import (
	"context"
	"fmt"
	"time"

	"conductor/pkg/faults"
	"conductor/pkg/logx"
)

// Invoker wraps outbound calls with retry and per-endpoint circuit breaking.
// One Invoker is shared across all turns; breakers are shared per endpoint.
type Invoker struct {
	policy   *Policy
	breakers *BreakerSet
	logger   *logx.Logger
}

// NewInvoker creates an invoker with the given policy and breaker set.
func NewInvoker(policy *Policy, breakers *BreakerSet) *Invoker {
	return &Invoker{
		policy:   policy,
		breakers: breakers,
		logger:   logx.NewLogger("resilience"),
	}
}

// Breakers exposes the breaker set for diagnostics.
func (inv *Invoker) Breakers() *BreakerSet {
	return inv.breakers
}

// Do invokes op against the named endpoint under the invoker's policy.
// The breaker is consulted before each attempt; an open circuit fails the
// call immediately without I/O. After retries are exhausted the last error is
// returned annotated with the exhausted-retry reason.
func Do[T any](ctx context.Context, inv *Invoker, endpoint string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	breaker := inv.breakers.Get(endpoint)

	for attempt := 0; attempt <= inv.policy.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := inv.policy.Delay(attempt)
			inv.logger.Debug("retrying %s in %s (attempt %d/%d)", endpoint, delay, attempt, inv.policy.Config.MaxRetries)
			select {
			case <-ctx.Done():
				return zero, fmt.Errorf("invoke %s cancelled: %w", endpoint, ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := breaker.Allow(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		// Only transient failures count against the circuit. Terminal errors,
		// cancellation, and control signals such as a handler asking for user
		// input say nothing about the endpoint's health.
		breaker.Record(err == nil || !faults.IsRetryable(err))
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !inv.policy.Classifier(err) {
			return zero, err
		}
	}

	return zero, faults.Wrap(faults.KindTransient, lastErr,
		fmt.Sprintf("%s failed after %d retries", endpoint, inv.policy.Config.MaxRetries))
}

// DoErr is Do for operations without a result value.
func DoErr(ctx context.Context, inv *Invoker, endpoint string, op func(context.Context) error) error {
	_, err := Do(ctx, inv, endpoint, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
