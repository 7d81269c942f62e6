package statemachine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/ledger"
)

func newRun(t *testing.T) (*Interpreter, *ledger.Ledger) {
	t.Helper()
	machine, err := NewLoopMachine()
	if err != nil {
		t.Fatalf("NewLoopMachine() error = %v", err)
	}
	l := ledger.New("run-1")
	interp := NewInterpreter(machine, NewContext("run-1", l))
	interp.Start()
	return interp, l
}

func TestNewContext(t *testing.T) {
	t.Parallel()

	l := ledger.New("r")
	ctx := NewContext("r", l)
	if ctx.RunID != "r" || ctx.Ledger != l {
		t.Errorf("NewContext() = %+v", ctx)
	}
	if ctx.Status != agent.StatusRunning {
		t.Errorf("Status = %s, want running", ctx.Status)
	}
}

func TestInterpreter_StartsRunning(t *testing.T) {
	t.Parallel()

	interp, _ := newRun(t)
	if interp.Status() != agent.StatusRunning {
		t.Errorf("Status() = %s, want running", interp.Status())
	}
	if interp.IsTerminal() {
		t.Error("IsTerminal() = true before any event")
	}
	if !interp.Matches(agent.StatusRunning) {
		t.Error("Matches(running) = false")
	}
}

func TestInterpreter_Finish(t *testing.T) {
	t.Parallel()

	interp, l := newRun(t)
	interp.Advance()
	interp.Advance()

	payload := json.RawMessage(`{"success":true,"response":"done"}`)
	if err := interp.Finish(payload); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if interp.Status() != agent.StatusFinished {
		t.Errorf("Status() = %s, want finished", interp.Status())
	}
	if !interp.IsTerminal() {
		t.Error("IsTerminal() = false after finish")
	}
	if string(interp.Context().Finish) != string(payload) {
		t.Errorf("Finish = %s, want %s", interp.Context().Finish, payload)
	}

	entries := l.EntriesByType(ledger.EntryRunFinished)
	if len(entries) != 1 {
		t.Fatalf("run_finished entries = %d, want 1", len(entries))
	}
	if entries[0].Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", entries[0].Iteration)
	}

	if err := interp.Fail(errors.New("late")); !errors.Is(err, ErrRunEnded) {
		t.Errorf("Fail() after finish error = %v, want ErrRunEnded", err)
	}
	if interp.Status() != agent.StatusFinished {
		t.Errorf("Status() = %s, want finished", interp.Status())
	}
}

func TestInterpreter_Fail(t *testing.T) {
	t.Parallel()

	interp, l := newRun(t)
	cause := &agent.MaxIterationsReachedError{Iterations: 3}
	if err := interp.Fail(cause); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if interp.Status() != agent.StatusFailed {
		t.Errorf("Status() = %s, want failed", interp.Status())
	}
	if !errors.Is(interp.Context().Err, agent.ErrMaxIterationsReached) {
		t.Errorf("Err = %v", interp.Context().Err)
	}
	if n := len(l.EntriesByType(ledger.EntryRunFailed)); n != 1 {
		t.Errorf("run_failed entries = %d, want 1", n)
	}
	if err := interp.Finish(nil); !errors.Is(err, ErrRunEnded) {
		t.Errorf("Finish() after fail error = %v, want ErrRunEnded", err)
	}
}

func TestInterpreter_FailRequiresError(t *testing.T) {
	t.Parallel()

	interp, _ := newRun(t)
	if err := interp.Fail(nil); err == nil {
		t.Error("Fail(nil) error = nil")
	}
	if interp.Status() != agent.StatusRunning {
		t.Errorf("Status() = %s, want running", interp.Status())
	}
}
