package core

import "context"

// Agent is a polymorphic unit of work with a declared capability set.
//
// Implementations must:
//   - Keep CanProcess a pure predicate (false is the only negative signal)
//   - Perform all work inside Process, returning the updated task value
//   - Restrict side effects to knowledge store writes
//
// Most agents embed agent.BaseAgent, which supplies identity, the default
// capability check and knowledge store helpers.
type Agent interface {
	ID() string
	Name() string
	Role() string
	Capabilities() []string
	CanProcess(task Task) bool
	Process(ctx context.Context, task Task) (Task, error)
}
