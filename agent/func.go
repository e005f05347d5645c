package agent

import (
	"context"

	"github.com/hupe1980/brigade/core"
)

// ProcessFunc computes a task result.
type ProcessFunc func(ctx context.Context, task core.Task) (any, error)

// FuncAgent adapts a closure into an agent.
type FuncAgent struct {
	BaseAgent
	fn ProcessFunc
}

// NewFuncAgent creates an agent that runs fn for every task whose type is in
// capabilities.
func NewFuncAgent(name, role string, fn ProcessFunc, capabilities ...string) *FuncAgent {
	return &FuncAgent{
		BaseAgent: NewBaseAgent(name, role, capabilities...),
		fn:        fn,
	}
}

// Process implements core.Agent. A returned error is reported to the
// orchestrator, which records the failure on the task.
func (a *FuncAgent) Process(ctx context.Context, task core.Task) (core.Task, error) {
	result, err := a.fn(ctx, task)
	if err != nil {
		return task, err
	}
	return a.Complete(task, result), nil
}
