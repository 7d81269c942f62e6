package agent

import "encoding/json"

// Decision is the parsed form of one model reply.
//
// Only Raw outlives the iteration that produced it: it is what the loop
// appends to the history as the assistant turn.
type Decision struct {
	// Thought is the free-text rationale. Always present.
	Thought string `json:"thought"`

	// Action names the capability to run. Empty means no action was chosen.
	Action string `json:"tool,omitempty"`

	// Args is the argument object, never nil after parsing.
	Args json.RawMessage `json:"tool_args,omitempty"`

	// Raw is the model text the decision was parsed from.
	Raw string `json:"-"`
}

// HasAction returns true if the model selected an action.
func (d Decision) HasAction() bool {
	return d.Action != ""
}

// ArgsOrEmpty returns the argument object, defaulting to {}.
func (d Decision) ArgsOrEmpty() json.RawMessage {
	if len(d.Args) == 0 {
		return json.RawMessage(`{}`)
	}
	return d.Args
}
