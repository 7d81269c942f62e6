package agent

import (
	"errors"
	"fmt"
)

// Domain errors for the agent loop.
var (
	// ErrDecode indicates the model output could not be parsed into a decision.
	ErrDecode = errors.New("model output could not be decoded")

	// ErrTransport indicates the model call itself failed.
	ErrTransport = errors.New("model transport failure")

	// ErrRetryBudgetExhausted indicates every allowed attempt of a model call failed.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

	// ErrMaxIterationsReached indicates the loop hit its iteration cap.
	ErrMaxIterationsReached = errors.New("max iterations reached")

	// ErrLoopBusy indicates a run is already in progress on the loop.
	ErrLoopBusy = errors.New("loop is already running")

	// ErrInvalidStatus indicates an unknown loop status.
	ErrInvalidStatus = errors.New("invalid loop status")
)

// DecodeError is returned when model output is not a valid decision.
type DecodeError struct {
	Raw string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode model output: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// TransportError is returned when the model call fails, including timeouts.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model call: %v", e.Err)
	}
	return fmt.Sprintf("model call (%s): %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// RetryBudgetExhaustedError is the fatal error after the last allowed attempt fails.
type RetryBudgetExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetryBudgetExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *RetryBudgetExhaustedError) Unwrap() error { return e.Last }

// Is reports whether target is ErrRetryBudgetExhausted.
func (e *RetryBudgetExhaustedError) Is(target error) bool { return target == ErrRetryBudgetExhausted }

// MaxIterationsReachedError is the fatal error when the loop runs out of iterations.
type MaxIterationsReachedError struct {
	Iterations int
}

func (e *MaxIterationsReachedError) Error() string {
	return fmt.Sprintf("max iterations reached: %d", e.Iterations)
}

// Is reports whether target is ErrMaxIterationsReached.
func (e *MaxIterationsReachedError) Is(target error) bool { return target == ErrMaxIterationsReached }

// IsFatal returns true for the errors that end a run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrRetryBudgetExhausted) || errors.Is(err, ErrMaxIterationsReached)
}
