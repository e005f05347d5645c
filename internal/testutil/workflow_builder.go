package testutil

import (
	"github.com/hupe1980/brigade/core"
)

// WorkflowBuilder helps construct workflows with fluent chaining for tests.
// Example:
//
//	wf := NewWorkflowBuilder("article").
//		Step("s1", "draft").Role("writer").
//		Step("s2", "review").Role("reviewer").DependsOn("s1").
//		Build()
type WorkflowBuilder struct {
	wf core.Workflow
}

// NewWorkflowBuilder creates a builder for a workflow with the given id.
func NewWorkflowBuilder(id string) *WorkflowBuilder {
	return &WorkflowBuilder{wf: core.Workflow{ID: id, Name: id}}
}

// Name sets the workflow name (chainable).
func (b *WorkflowBuilder) Name(n string) *WorkflowBuilder { b.wf.Name = n; return b }

// Step appends a step; subsequent modifiers apply to it (chainable).
func (b *WorkflowBuilder) Step(id, taskType string) *WorkflowBuilder {
	b.wf.Steps = append(b.wf.Steps, core.WorkflowStep{ID: id, TaskType: taskType})
	return b
}

func (b *WorkflowBuilder) last() *core.WorkflowStep { return &b.wf.Steps[len(b.wf.Steps)-1] }

// Role sets the agent role of the last step (chainable).
func (b *WorkflowBuilder) Role(role string) *WorkflowBuilder { b.last().AgentRole = role; return b }

// Description sets the description of the last step (chainable).
func (b *WorkflowBuilder) Description(d string) *WorkflowBuilder {
	b.last().Description = d
	return b
}

// DependsOn appends dependencies to the last step (chainable).
func (b *WorkflowBuilder) DependsOn(ids ...string) *WorkflowBuilder {
	b.last().Dependencies = append(b.last().Dependencies, ids...)
	return b
}

// When sets the condition of the last step (chainable).
func (b *WorkflowBuilder) When(c core.Condition) *WorkflowBuilder { b.last().Condition = c; return b }

// Build returns the workflow.
func (b *WorkflowBuilder) Build() core.Workflow { return b.wf.Clone() }
