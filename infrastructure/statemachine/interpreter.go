package statemachine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

// ErrRunEnded is returned when an event is sent after the run reached a
// terminal status.
var ErrRunEnded = errors.New("run already ended")

// Interpreter wraps the statekit interpreter for a single run.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter bound to ctx.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context) *Interpreter {
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	return &Interpreter{interp: interp, ctx: ctx}
}

// Start enters the running state.
func (i *Interpreter) Start() {
	i.interp.Start()
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}

// Status returns the current run status.
func (i *Interpreter) Status() agent.Status {
	return StatusFromMachine(i.interp.State().Value)
}

// Advance records that another iteration completed.
func (i *Interpreter) Advance() int {
	i.ctx.Iteration++
	return i.ctx.Iteration
}

// Finish moves the run to finished with the terminal action's arguments.
func (i *Interpreter) Finish(result json.RawMessage) error {
	if i.interp.Done() {
		return fmt.Errorf("finish: %w", ErrRunEnded)
	}
	i.interp.Send(statekit.Event{Type: EventFinish, Payload: FinishPayload{Result: result}})
	return nil
}

// Fail moves the run to failed.
func (i *Interpreter) Fail(err error) error {
	if err == nil {
		return errors.New("fail: nil error")
	}
	if i.interp.Done() {
		return fmt.Errorf("fail: %w", ErrRunEnded)
	}
	i.interp.Send(statekit.Event{Type: EventFail, Payload: FailPayload{Err: err}})
	return nil
}

// IsTerminal returns true once the run finished or failed.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Matches checks the current state against a status.
func (i *Interpreter) Matches(status agent.Status) bool {
	return i.interp.Matches(statekit.StateID(status))
}

// Context returns the interpreter context.
func (i *Interpreter) Context() *Context {
	return i.ctx
}
