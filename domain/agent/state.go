package agent

import "encoding/json"

// State is the accumulator owned by one loop run. Capabilities never
// mutate it directly; they return a Delta that the loop applies.
type State struct {
	Context *ExplorationContext `json:"context,omitempty"`
	Plan    []Task              `json:"plan,omitempty"`
	Usage   TokenUsage          `json:"usage"`
}

// NewState returns an empty state.
func NewState() State {
	return State{}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{Usage: s.Usage}
	if s.Context != nil {
		c := s.Context.Clone()
		out.Context = &c
	}
	if s.Plan != nil {
		out.Plan = make([]Task, len(s.Plan))
		for i, t := range s.Plan {
			out.Plan[i] = t.Clone()
		}
	}
	return out
}

// ExplorationContext holds what the explorer has learned about the repository.
type ExplorationContext struct {
	Explanation        string              `json:"explanation"`
	CodeFlowGraph      string              `json:"code_flow_graph"`
	RelevantFiles      []string            `json:"relevant_files"`
	SimilarFeatureDirs []SimilarFeatureDir `json:"similar_feature_dirs"`
}

// SimilarFeatureDir points at a directory implementing something comparable
// to the requested feature.
type SimilarFeatureDir struct {
	Directory   string   `json:"directory"`
	Description string   `json:"description,omitempty"`
	Files       []string `json:"files,omitempty"`
}

// Clone returns a deep copy.
func (c ExplorationContext) Clone() ExplorationContext {
	out := c
	out.RelevantFiles = cloneStrings(c.RelevantFiles)
	if c.SimilarFeatureDirs != nil {
		out.SimilarFeatureDirs = make([]SimilarFeatureDir, len(c.SimilarFeatureDirs))
		for i, d := range c.SimilarFeatureDirs {
			d.Files = cloneStrings(d.Files)
			out.SimilarFeatureDirs[i] = d
		}
	}
	return out
}

// Task is one step of an edit plan.
type Task struct {
	Step            int      `json:"step"`
	TaskDescription string   `json:"task_description"`
	Create          []string `json:"create,omitempty"`
	CreateInfo      string   `json:"create_info,omitempty"`
	Update          []string `json:"update,omitempty"`
	UpdateInfo      string   `json:"update_info,omitempty"`
	Reference       []string `json:"reference,omitempty"`
	ReferenceInfo   string   `json:"reference_info,omitempty"`
}

// Clone returns a deep copy.
func (t Task) Clone() Task {
	out := t
	out.Create = cloneStrings(t.Create)
	out.Update = cloneStrings(t.Update)
	out.Reference = cloneStrings(t.Reference)
	return out
}

// TouchesFiles returns true if the task creates or updates at least one file.
func (t Task) TouchesFiles() bool {
	return len(t.Create) > 0 || len(t.Update) > 0
}

// PlanJSON renders the plan as indented JSON, as shown to the planner.
func (s State) PlanJSON() string {
	plan := s.Plan
	if plan == nil {
		plan = []Task{}
	}
	data, err := json.MarshalIndent(plan, "", "    ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// TokenUsage counts tokens reported by the model provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	Calls            int `json:"calls"`
}

// Total returns prompt plus completion tokens.
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
