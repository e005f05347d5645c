package core

import "errors"

var (
	// ErrNotFound is returned when a referenced task, agent, workflow or
	// knowledge entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRegistered is returned for a duplicate agent or workflow id.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrUnassignable is returned when an explicitly requested agent cannot
	// process the task type.
	ErrUnassignable = errors.New("agent cannot process task")

	// ErrNoCapableAgent is returned when auto-assignment finds no registered
	// agent able to process the task.
	ErrNoCapableAgent = errors.New("no capable agent")

	// ErrNotInitialized is returned when an agent touches the knowledge store
	// before one has been attached.
	ErrNotInitialized = errors.New("knowledge store not initialized")

	// ErrUpstream wraps failures of the external text-completion service.
	ErrUpstream = errors.New("upstream failure")

	// ErrInvalidWorkflow is returned when a workflow definition fails validation.
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrInvalidTransition is returned when assigning a task that is not pending.
	ErrInvalidTransition = errors.New("invalid task transition")
)
