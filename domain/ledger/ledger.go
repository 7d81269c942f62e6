package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger provides an append-only record of everything that happened in a run.
// The action log is the subset of action entries.
type Ledger struct {
	runID   string
	entries []Entry
	mu      sync.RWMutex
}

// New creates a new ledger for the given run.
func New(runID string) *Ledger {
	return &Ledger{
		runID:   runID,
		entries: make([]Entry, 0),
	}
}

// Append adds an entry to the ledger.
func (l *Ledger) Append(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.RunID = l.runID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	l.entries = append(l.entries, entry)
}

// Entries returns a copy of all entries.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return entries
}

// EntriesByType returns entries filtered by type.
func (l *Ledger) EntriesByType(entryType EntryType) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filtered []Entry
	for _, e := range l.entries {
		if e.Type == entryType {
			filtered = append(filtered, e)
		}
	}
	return filtered
}

// Actions returns the action log in append order.
func (l *Ledger) Actions() []ActionDetails {
	entries := l.EntriesByType(EntryAction)
	out := make([]ActionDetails, 0, len(entries))
	for _, e := range entries {
		var d ActionDetails
		if err := e.DecodeDetails(&d); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// LastEntry returns the most recent entry, or nil if empty.
func (l *Ledger) LastEntry() *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return nil
	}
	entry := l.entries[len(l.entries)-1]
	return &entry
}

// Count returns the number of entries.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// RunID returns the associated run ID.
func (l *Ledger) RunID() string {
	return l.runID
}

// RecordRunStarted records the start of a run.
func (l *Ledger) RecordRunStarted(agentName, task string) {
	l.Append(NewEntry(EntryRunStarted, l.runID, 0, map[string]string{
		"agent": agentName,
		"task":  task,
	}))
}

// RecordRunFinished records the terminal action payload.
func (l *Ledger) RecordRunFinished(iteration int, payload json.RawMessage) {
	l.Append(NewEntry(EntryRunFinished, l.runID, iteration, map[string]json.RawMessage{
		"result": payload,
	}))
}

// RecordRunFailed records the fatal error that ended a run.
func (l *Ledger) RecordRunFailed(iteration int, reason string) {
	l.Append(NewEntry(EntryRunFailed, l.runID, iteration, map[string]string{
		"reason": reason,
	}))
}

// RecordAction records a requested action. It runs before anything else
// happens to the request.
func (l *Ledger) RecordAction(iteration int, action string, args json.RawMessage) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	l.Append(NewEntry(EntryAction, l.runID, iteration, ActionDetails{
		Action: action,
		Args:   args,
	}))
}

// RecordObservation records the outcome of a dispatch.
func (l *Ledger) RecordObservation(iteration int, details ObservationDetails) {
	l.Append(NewEntry(EntryObservation, l.runID, iteration, details))
}

// RecordRetry records a failed model attempt.
func (l *Ledger) RecordRetry(iteration, attempt, maxAttempts int, err error) {
	l.Append(NewEntry(EntryRetry, l.runID, iteration, RetryDetails{
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Error:       errString(err),
	}))
}

// RecordStateApplied records a state delta, successful or not.
func (l *Ledger) RecordStateApplied(iteration int, action string, delta any, err error) {
	l.Append(NewEntry(EntryStateApplied, l.runID, iteration, StateDetails{
		Action: action,
		Delta:  fmt.Sprintf("%T", delta),
		Error:  errString(err),
	}))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
