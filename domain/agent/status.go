package agent

// Status is the lifecycle state of a loop run.
type Status string

const (
	StatusRunning  Status = "running"  // Iterating
	StatusFinished Status = "finished" // The terminal action was dispatched
	StatusFailed   Status = "failed"   // A fatal error ended the run
)

// IsTerminal returns true if this is a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// IsValid returns true if the status is recognized.
func (s Status) IsValid() bool {
	switch s {
	case StatusRunning, StatusFinished, StatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", ErrInvalidStatus
	}
	return st, nil
}
