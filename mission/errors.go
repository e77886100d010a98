package mission

import "errors"

// Common errors
var (
	// ErrNotRegistered is returned when a task type is looked up in a
	// registry that does not know it.
	ErrNotRegistered = errors.New("task type not registered")

	// ErrAlreadyRegistered is returned when a definition name collides
	// with one already in the registry.
	ErrAlreadyRegistered = errors.New("task type already registered")

	// ErrFrozen is returned when a definition is mutated after it has
	// been registered.
	ErrFrozen = errors.New("definition is frozen")

	// ErrDuplicateStep is returned when a step name is declared twice
	// within one definition.
	ErrDuplicateStep = errors.New("step already declared")

	// ErrUnknownStep is returned when execution reaches a step that has
	// no bound handler.
	ErrUnknownStep = errors.New("no handler for step")

	// ErrNilTask is returned when Execute is called without a task.
	ErrNilTask = errors.New("task is nil")

	// ErrInvalidDefinition is returned when a definition is registered
	// without a name or factory.
	ErrInvalidDefinition = errors.New("invalid definition")
)
