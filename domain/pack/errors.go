package pack

import "errors"

// Domain errors for pack operations.
var (
	// ErrPackExists is returned when the same pack is composed twice.
	ErrPackExists = errors.New("pack already exists")

	// ErrInvalidPack is returned when a pack is invalid.
	ErrInvalidPack = errors.New("invalid pack")

	// ErrDependencyNotFound is returned when a required dependency is missing.
	ErrDependencyNotFound = errors.New("pack dependency not found")
)
