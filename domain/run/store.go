// Package run provides the persisted form of a loop run and its store port.
package run

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/ledger"
)

// Checkpoint is the persisted state of a run: the full history, the action
// log, the agent state and, once terminal, the outcome.
type Checkpoint struct {
	RunID     string                 `json:"run_id"`
	Agent     string                 `json:"agent"`
	Task      string                 `json:"task"`
	Status    agent.Status           `json:"status"`
	Iteration int                    `json:"iteration"`
	History   []agent.Message        `json:"history"`
	Actions   []ledger.ActionDetails `json:"actions"`
	State     agent.State            `json:"state"`
	Finish    json.RawMessage        `json:"finish,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Store persists checkpoints. Save is an upsert keyed by RunID.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Get(ctx context.Context, runID string) (*Checkpoint, error)
	List(ctx context.Context, filter ListFilter) ([]*Checkpoint, error)
	Delete(ctx context.Context, runID string) error
}

// ListFilter specifies criteria for listing checkpoints.
type ListFilter struct {
	// Agent filters by agent name (empty means all).
	Agent string

	// Status filters by run status (empty means all).
	Status []agent.Status

	// Limit is the maximum number of checkpoints to return (0 = no limit).
	Limit int
}

// Matches reports whether the checkpoint passes the filter, ignoring Limit.
func (f ListFilter) Matches(cp *Checkpoint) bool {
	if f.Agent != "" && cp.Agent != f.Agent {
		return false
	}
	if len(f.Status) == 0 {
		return true
	}
	for _, s := range f.Status {
		if cp.Status == s {
			return true
		}
	}
	return false
}
