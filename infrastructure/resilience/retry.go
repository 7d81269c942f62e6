package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

// RetryBudget tracks the attempts of one guarded operation.
type RetryBudget struct {
	Made    int
	Allowed int
}

// Exhausted reports whether no attempt is left.
func (b RetryBudget) Exhausted() bool {
	return b.Made == b.Allowed
}

// RetryConfig configures a RetryPolicy.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, the first one included.
	MaxAttempts int

	// InitialDelay is the wait before the second try. Zero disables waiting.
	InitialDelay time.Duration

	// MaxDelay caps the wait between tries.
	MaxDelay time.Duration

	// Multiplier grows the wait between tries.
	Multiplier float64

	// Jitter is the randomization factor of the wait (0 = none).
	Jitter float64

	// Timeout bounds each try. Zero means no per-try timeout.
	Timeout time.Duration

	// OnRetry is called after a failed try that will be retried.
	OnRetry func(budget RetryBudget, err error)
}

// DefaultRetryConfig returns a configuration with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
	}
}

// RetryPolicy runs an operation until it succeeds or the budget runs out.
// Every failure is transient; exhausting the budget is the only fatal outcome.
//
// The budget counts total tries: the counter is incremented before each try
// and the policy gives up when it equals MaxAttempts after a failure.
type RetryPolicy[T any] struct {
	config RetryConfig
}

// NewRetryPolicy creates a retry policy. MaxAttempts below 1 is treated as 1.
func NewRetryPolicy[T any](config RetryConfig) *RetryPolicy[T] {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier < 1 {
		config.Multiplier = 1
	}
	return &RetryPolicy[T]{config: config}
}

// MaxAttempts returns the allowance of one invocation.
func (p *RetryPolicy[T]) MaxAttempts() int {
	return p.config.MaxAttempts
}

// Invoke runs op with a fresh budget. On exhaustion it returns
// *agent.RetryBudgetExhaustedError wrapping the last failure. If ctx is
// cancelled between tries, ctx.Err() is returned.
func (p *RetryPolicy[T]) Invoke(ctx context.Context, op func(ctx context.Context, budget RetryBudget) (T, error)) (T, error) {
	var zero T
	budget := RetryBudget{Allowed: p.config.MaxAttempts}
	delays := p.newBackOff()

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		budget.Made++
		result, err := p.try(ctx, op, budget)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if budget.Exhausted() {
			return zero, &agent.RetryBudgetExhaustedError{Attempts: budget.Made, Last: err}
		}
		if p.config.OnRetry != nil {
			p.config.OnRetry(budget, err)
		}
		if err := wait(ctx, delays); err != nil {
			return zero, err
		}
	}
}

func (p *RetryPolicy[T]) try(ctx context.Context, op func(context.Context, RetryBudget) (T, error), budget RetryBudget) (T, error) {
	if p.config.Timeout <= 0 {
		return op(ctx, budget)
	}
	tctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()
	return op(tctx, budget)
}

func (p *RetryPolicy[T]) newBackOff() backoff.BackOff {
	if p.config.InitialDelay <= 0 {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.InitialDelay
	b.Multiplier = p.config.Multiplier
	b.RandomizationFactor = p.config.Jitter
	if p.config.MaxDelay > 0 {
		b.MaxInterval = p.config.MaxDelay
	}
	b.Reset()
	return b
}

func wait(ctx context.Context, delays backoff.BackOff) error {
	d := delays.NextBackOff()
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
