// Package statemachine provides the statekit chart that drives a loop run
// from running to one of its terminal statuses.
package statemachine

import (
	"encoding/json"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/ledger"
)

// Context carries run bookkeeping through the chart.
type Context struct {
	RunID     string
	Ledger    *ledger.Ledger
	Status    agent.Status
	Iteration int
	Finish    json.RawMessage
	Err       error
}

// NewContext creates a chart context for a run.
func NewContext(runID string, l *ledger.Ledger) *Context {
	return &Context{
		RunID:  runID,
		Ledger: l,
		Status: agent.StatusRunning,
	}
}

const (
	stateRunning  = statekit.StateID(agent.StatusRunning)
	stateFinished = statekit.StateID(agent.StatusFinished)
	stateFailed   = statekit.StateID(agent.StatusFailed)
)

// Event types understood by the chart.
const (
	EventFinish statekit.EventType = "FINISH"
	EventFail   statekit.EventType = "FAIL"
)

// FinishPayload is sent with EventFinish.
type FinishPayload struct {
	Result json.RawMessage
}

// FailPayload is sent with EventFail.
type FailPayload struct {
	Err error
}

// NewLoopMachine creates the loop statechart.
func NewLoopMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("loop").
		WithInitial(stateRunning).
		WithContext(&Context{}).
		WithAction("enterRunning", enterRunning).
		WithAction("enterFinished", enterFinished).
		WithAction("enterFailed", enterFailed).
		WithGuard("hasFailure", guardHasFailure).
		State(stateRunning).
			OnEntry("enterRunning").
			On("FINISH").Target(stateFinished).
			On("FAIL").Target(stateFailed).Guard("hasFailure").
			Done().
		State(stateFinished).
			Final().
			OnEntry("enterFinished").
			Done().
		State(stateFailed).
			Final().
			OnEntry("enterFailed").
			Done().
		Build()
}

// StatusFromMachine converts a chart state ID to a run status.
func StatusFromMachine(id statekit.StateID) agent.Status {
	return agent.Status(id)
}

func enterRunning(ctx **Context, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Status = agent.StatusRunning
}

func enterFinished(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx
	c.Status = agent.StatusFinished
	if p, ok := event.Payload.(FinishPayload); ok {
		c.Finish = p.Result
	}
	if c.Ledger != nil {
		c.Ledger.RecordRunFinished(c.Iteration, c.Finish)
	}
}

func enterFailed(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx
	c.Status = agent.StatusFailed
	if p, ok := event.Payload.(FailPayload); ok {
		c.Err = p.Err
	}
	if c.Ledger != nil && c.Err != nil {
		c.Ledger.RecordRunFailed(c.Iteration, c.Err.Error())
	}
}

// guardHasFailure rejects FAIL events that carry no error.
func guardHasFailure(_ *Context, event statekit.Event) bool {
	p, ok := event.Payload.(FailPayload)
	return ok && p.Err != nil
}
