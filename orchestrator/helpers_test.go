package orchestrator

import (
	"context"

	"github.com/hupe1980/brigade/agent"
	"github.com/hupe1980/brigade/core"
)

// rawAgent hands the full task value back to the orchestrator.
type rawAgent struct {
	agent.BaseAgent
	fn func(ctx context.Context, task core.Task) (core.Task, error)
}

func (a *rawAgent) Process(ctx context.Context, task core.Task) (core.Task, error) {
	return a.fn(ctx, task)
}

func newFuncAgent(role, capability string, fn func(ctx context.Context, task core.Task) (core.Task, error)) *rawAgent {
	return &rawAgent{BaseAgent: agent.NewBaseAgent(role, role, capability), fn: fn}
}

func newBaseBackedAgent() *agent.FuncAgent {
	return agent.NewFuncAgent("keeper", "keeper", func(context.Context, core.Task) (any, error) {
		return "ok", nil
	}, "remember")
}
