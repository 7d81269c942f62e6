// Package tool provides the domain model for the capabilities an agent can invoke.
package tool

import "time"

// Annotations describe how the dispatcher treats a spec.
type Annotations struct {
	// ReadOnly indicates the capability has no side effects on the repository.
	ReadOnly bool `json:"read_only"`

	// Cacheable indicates successful results may be served from the observation cache.
	Cacheable bool `json:"cacheable"`

	// Terminal indicates dispatching this spec ends the run.
	Terminal bool `json:"terminal"`

	// UpdatesState indicates the capability returns a state delta.
	UpdatesState bool `json:"updates_state"`

	// Timeout overrides the executor's default timeout when non-zero.
	Timeout time.Duration `json:"timeout,omitempty"`

	// Tags are arbitrary labels for categorization.
	Tags []string `json:"tags,omitempty"`
}

// HasTag checks if the annotations include a specific tag.
func (a Annotations) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
