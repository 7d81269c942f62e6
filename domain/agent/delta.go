package agent

import "errors"

// ErrInvalidDelta indicates a delta could not be applied to the state.
var ErrInvalidDelta = errors.New("invalid state delta")

// Delta is a state change produced by a capability. Apply returns the new
// state or an error; on error the previous state is kept as is.
type Delta interface {
	Apply(State) (State, error)
}

// ReplaceContext replaces the exploration context.
type ReplaceContext struct {
	Context ExplorationContext
}

// Apply implements Delta.
func (d ReplaceContext) Apply(s State) (State, error) {
	next := s.Clone()
	c := d.Context.Clone()
	next.Context = &c
	return next, nil
}

// ReplacePlan replaces the whole plan. Every task must touch a file.
type ReplacePlan struct {
	Plan []Task
}

// Apply implements Delta.
func (d ReplacePlan) Apply(s State) (State, error) {
	for _, t := range d.Plan {
		if !t.TouchesFiles() {
			return s, errors.Join(ErrInvalidDelta, errors.New("every task needs a file to create or update"))
		}
	}
	next := s.Clone()
	next.Plan = make([]Task, len(d.Plan))
	for i, t := range d.Plan {
		next.Plan[i] = t.Clone()
	}
	return next, nil
}

// AddUsage adds token counts to the state.
type AddUsage struct {
	Usage TokenUsage
}

// Apply implements Delta.
func (d AddUsage) Apply(s State) (State, error) {
	next := s.Clone()
	next.Usage.PromptTokens += d.Usage.PromptTokens
	next.Usage.CompletionTokens += d.Usage.CompletionTokens
	next.Usage.Calls += d.Usage.Calls
	return next, nil
}
