package core

import "slices"

// Condition gates a workflow step on the execution context.
type Condition func(ctx TaskContext) bool

// WorkflowStep is one node of a workflow graph.
type WorkflowStep struct {
	ID          string
	TaskType    string
	Description string
	// AgentRole targets the agent with this role; empty means auto-assign.
	AgentRole string
	// Dependencies lists step ids that must each have a completed task.
	Dependencies []string
	// Condition is evaluated against the execution context for root steps.
	Condition Condition
}

// HasDependencies reports whether the step waits on other steps.
func (s WorkflowStep) HasDependencies() bool { return len(s.Dependencies) > 0 }

// DependsOn reports whether stepID is one of the step's dependencies.
func (s WorkflowStep) DependsOn(stepID string) bool {
	return slices.Contains(s.Dependencies, stepID)
}

// Workflow is a static step graph. It is interpreted by the orchestrator and
// immutable once registered.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Steps       []WorkflowStep
}

// Step looks up a step by id.
func (w Workflow) Step(id string) (WorkflowStep, bool) {
	for _, s := range w.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return WorkflowStep{}, false
}

// Clone copies the step list and each step's dependency slice.
func (w Workflow) Clone() Workflow {
	nw := w
	nw.Steps = make([]WorkflowStep, len(w.Steps))
	for i, s := range w.Steps {
		s.Dependencies = slices.Clone(s.Dependencies)
		nw.Steps[i] = s
	}
	return nw
}
