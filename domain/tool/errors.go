package tool

import "errors"

// Domain errors for the tool system.
var (
	// ErrEmptyName indicates a spec was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrNoCapability indicates a spec was created without a capability.
	ErrNoCapability = errors.New("tool has no capability")

	// ErrToolExists indicates a spec with the same name already exists.
	ErrToolExists = errors.New("tool already exists")

	// ErrRegistryFrozen indicates registration was attempted after the registry was frozen.
	ErrRegistryFrozen = errors.New("tool registry is frozen")

	// ErrInvalidArgs indicates the arguments failed schema validation.
	ErrInvalidArgs = errors.New("invalid tool arguments")

	// ErrInvalidSchema indicates an argument schema could not be derived or resolved.
	ErrInvalidSchema = errors.New("invalid tool schema")

	// ErrExecutionTimeout indicates the capability execution timed out.
	ErrExecutionTimeout = errors.New("tool execution timed out")
)
