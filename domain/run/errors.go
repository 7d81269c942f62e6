package run

import "errors"

// Domain errors for checkpoint store operations.
var (
	// ErrRunNotFound is returned when a checkpoint does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunID is returned when a run ID is invalid (e.g., empty).
	ErrInvalidRunID = errors.New("invalid run ID")

	// ErrConnectionFailed is returned when connection to the store backend fails.
	ErrConnectionFailed = errors.New("store connection failed")
)
