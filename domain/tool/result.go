package tool

import (
	"context"
	"encoding/json"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

// Call is the input of one capability execution.
type Call struct {
	// Args are the validated arguments with defaults applied.
	Args json.RawMessage

	// State is a snapshot of the run state. Changes go through Result.Delta.
	State agent.State

	// RunID identifies the run the call belongs to.
	RunID string

	// Iteration is the loop iteration that issued the call.
	Iteration int
}

// Result is what a capability reports back.
type Result struct {
	Success  bool
	Response any

	// Delta is applied by the loop when the result is successful.
	Delta agent.Delta
}

// OK creates a successful result.
func OK(response any) Result {
	return Result{Success: true, Response: response}
}

// Fail creates an unsuccessful result.
func Fail(response any) Result {
	return Result{Success: false, Response: response}
}

// WithDelta returns a copy of the result carrying a state delta.
func (r Result) WithDelta(d agent.Delta) Result {
	r.Delta = d
	return r
}

// Observation converts the result into an observation.
func (r Result) Observation() agent.Observation {
	return agent.Observation{Success: r.Success, Response: r.Response}
}

// Capability is the single behavior every spec shares.
type Capability interface {
	Execute(ctx context.Context, call Call) (Result, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, call Call) (Result, error)

// Execute implements Capability.
func (f CapabilityFunc) Execute(ctx context.Context, call Call) (Result, error) {
	return f(ctx, call)
}
