package testutil

import (
	"time"

	"github.com/hupe1980/brigade/core"
)

// TaskBuilder helps construct task drafts with fluent chaining for tests.
// Example:
//
//	draft := NewTaskBuilder("draft").Description("write intro").Value("topic", "soup").Build()
type TaskBuilder struct {
	draft core.TaskDraft
}

// NewTaskBuilder creates a builder for a draft of the given type.
func NewTaskBuilder(taskType string) *TaskBuilder {
	return &TaskBuilder{draft: core.TaskDraft{Type: taskType}}
}

// Description sets the description (chainable).
func (b *TaskBuilder) Description(d string) *TaskBuilder { b.draft.Description = d; return b }

// Priority sets the priority (chainable).
func (b *TaskBuilder) Priority(p core.Priority) *TaskBuilder { b.draft.Priority = p; return b }

// Deadline sets the deadline (chainable).
func (b *TaskBuilder) Deadline(t time.Time) *TaskBuilder { b.draft.Deadline = &t; return b }

// DependsOn appends ad-hoc task dependencies (chainable).
func (b *TaskBuilder) DependsOn(ids ...string) *TaskBuilder {
	b.draft.Dependencies = append(b.draft.Dependencies, ids...)
	return b
}

// Value sets a caller-supplied context value (chainable).
func (b *TaskBuilder) Value(key string, v any) *TaskBuilder {
	b.draft.Context = b.draft.Context.With(key, v)
	return b
}

// Build returns the draft.
func (b *TaskBuilder) Build() core.TaskDraft { return b.draft }
