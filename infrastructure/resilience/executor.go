// Package resilience provides the retry policy of model calls and the
// guarded execution of capabilities.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"

	"github.com/felixgeelhaar/repoagent/domain/tool"
)

// ErrCapabilityPanic indicates a capability panicked.
var ErrCapabilityPanic = errors.New("capability panicked")

// Executor runs capabilities under a concurrency ceiling and a timeout,
// converting panics into errors.
type Executor struct {
	bulkhead bulkhead.Bulkhead[tool.Result]
	timeout  time.Duration
}

// ExecutorConfig configures the executor.
type ExecutorConfig struct {
	// MaxConcurrent limits concurrent capability executions.
	MaxConcurrent int

	// DefaultTimeout is the execution timeout when the spec sets none.
	DefaultTimeout time.Duration
}

// DefaultExecutorConfig returns a configuration with sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxConcurrent:  10,
		DefaultTimeout: 30 * time.Second,
	}
}

// NewExecutor creates a new executor.
func NewExecutor(config ExecutorConfig) *Executor {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Executor{
		bulkhead: bulkhead.New[tool.Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
		}),
		timeout: config.DefaultTimeout,
	}
}

// NewDefaultExecutor creates an executor with default configuration.
func NewDefaultExecutor() *Executor {
	return NewExecutor(DefaultExecutorConfig())
}

// Execute runs the spec's capability.
// Composition order: Bulkhead → Timeout → Recover.
func (e *Executor) Execute(ctx context.Context, spec *tool.Spec, call tool.Call) (tool.Result, error) {
	timeout := e.timeout
	if t := spec.Annotations().Timeout; t > 0 {
		timeout = t
	}

	return e.bulkhead.Execute(ctx, func(ctx context.Context) (tool.Result, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		result, err := recoverExecute(ctx, spec, call)
		if err != nil && errors.Is(err, context.DeadlineExceeded) {
			return result, fmt.Errorf("%w after %s: %v", tool.ErrExecutionTimeout, timeout, err)
		}
		return result, err
	})
}

func recoverExecute(ctx context.Context, spec *tool.Spec, call tool.Call) (result tool.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = tool.Result{}
			err = fmt.Errorf("%w: %s: %v", ErrCapabilityPanic, spec.Name(), r)
		}
	}()
	return spec.Execute(ctx, call)
}
