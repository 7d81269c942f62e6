// Package ledger provides the append-only record of what happened during a run.
package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EntryType classifies the type of ledger entry.
type EntryType string

const (
	EntryRunStarted   EntryType = "run_started"
	EntryRunFinished  EntryType = "run_finished"
	EntryRunFailed    EntryType = "run_failed"
	EntryAction       EntryType = "action"
	EntryObservation  EntryType = "observation"
	EntryRetry        EntryType = "retry"
	EntryStateApplied EntryType = "state_applied"
)

// Entry represents a single record in the ledger.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      EntryType       `json:"type"`
	RunID     string          `json:"run_id"`
	Iteration int             `json:"iteration"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// ActionDetails is the requested action exactly as the model chose it.
// Action is empty when the model chose none.
type ActionDetails struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

// ObservationDetails summarizes a dispatch outcome.
type ObservationDetails struct {
	Action   string        `json:"action"`
	Success  bool          `json:"success"`
	Terminal bool          `json:"terminal,omitempty"`
	Cached   bool          `json:"cached,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RetryDetails describes a failed model attempt that will be retried.
type RetryDetails struct {
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	Error       string `json:"error"`
}

// StateDetails names the delta applied to the run state.
type StateDetails struct {
	Action string `json:"action"`
	Delta  string `json:"delta"`
	Error  string `json:"error,omitempty"`
}

// NewEntry creates a new ledger entry.
func NewEntry(entryType EntryType, runID string, iteration int, details any) Entry {
	var detailsJSON json.RawMessage
	if details != nil {
		detailsJSON, _ = json.Marshal(details)
	}

	return Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      entryType,
		RunID:     runID,
		Iteration: iteration,
		Details:   detailsJSON,
	}
}

// DecodeDetails unmarshals the entry details into the given struct.
func (e Entry) DecodeDetails(v any) error {
	if e.Details == nil {
		return nil
	}
	return json.Unmarshal(e.Details, v)
}
