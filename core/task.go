package core

import (
	"maps"
	"slices"
	"time"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	// TaskStatusPending is the only initial state, set by AddTask.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress marks a task assigned to an agent and being processed.
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusCompleted is terminal; the agent finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed is terminal; the agent returned an error or panicked.
	TaskStatusFailed TaskStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Priority is advisory; the orchestrator preserves it but does not reorder work by it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// TaskContext is the key/value bag travelling with a task. Workflow tasks
// always carry WorkflowID and StepID; dependency-triggered tasks also carry
// the result of the task that unblocked them in PreviousResults. Values holds
// opaque caller-supplied keys.
type TaskContext struct {
	WorkflowID      string         `json:"workflowId,omitempty"`
	StepID          string         `json:"stepId,omitempty"`
	PreviousResults any            `json:"previousResults,omitempty"`
	Values          map[string]any `json:"values,omitempty"`
}

// Get returns a caller-supplied value.
func (c TaskContext) Get(key string) (any, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// GetString returns a caller-supplied value when it is a string.
func (c TaskContext) GetString(key string) string {
	v, _ := c.Values[key].(string)
	return v
}

// IsWorkflow reports whether the context binds the task to a workflow step.
func (c TaskContext) IsWorkflow() bool { return c.WorkflowID != "" && c.StepID != "" }

// Clone returns a copy whose Values map is not shared with the receiver.
func (c TaskContext) Clone() TaskContext {
	nc := c
	if c.Values != nil {
		nc.Values = maps.Clone(c.Values)
	}
	return nc
}

// With returns a copy with key set in Values.
func (c TaskContext) With(key string, value any) TaskContext {
	nc := c.Clone()
	if nc.Values == nil {
		nc.Values = make(map[string]any, 1)
	}
	nc.Values[key] = value
	return nc
}

// Task is a unit of work. Tasks are value objects: the orchestrator replaces
// the stored value on every transition and hands out clones, so holders of an
// older snapshot never observe later changes.
type Task struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Priority     Priority    `json:"priority"`
	Status       TaskStatus  `json:"status"`
	Description  string      `json:"description"`
	AssignedTo   string      `json:"assignedTo,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	Deadline     *time.Time  `json:"deadline,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty"`
	Context      TaskContext `json:"context"`
	Result       any         `json:"result,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// Clone returns a deep-enough copy: slices, the deadline and the context
// values are not shared. Result is copied by reference.
func (t Task) Clone() Task {
	nt := t
	nt.Dependencies = slices.Clone(t.Dependencies)
	if t.Deadline != nil {
		d := *t.Deadline
		nt.Deadline = &d
	}
	nt.Context = t.Context.Clone()
	return nt
}

// FailureResult builds the conventional result payload of a failed task.
func FailureResult(msg string) map[string]any {
	return map[string]any{"error": msg}
}

// TaskDraft is the caller-supplied part of a task passed to AddTask.
type TaskDraft struct {
	Type         string
	Priority     Priority
	Description  string
	Deadline     *time.Time
	Dependencies []string
	Context      TaskContext
}
