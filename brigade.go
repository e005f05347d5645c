// Package brigade provides a high-level façade over the orchestrator and the
// knowledge store, enabling rapid construction of multi-agent task pipelines.
// Most applications interact with this package by:
//  1. Creating a Brigade via New() (optionally overriding the in-memory knowledge store)
//  2. Registering agents and workflows
//  3. Running workflows (Run) or single tasks (RunTask) synchronously, or
//     driving the underlying orchestrator directly for asynchronous use
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable knowledge store, a structured logger
// and a Prometheus registerer.
package brigade

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/knowledge"
	"github.com/hupe1980/brigade/logging"
	"github.com/hupe1980/brigade/orchestrator"
)

// Options configures the Brigade instance.
type Options struct {
	// OrchestratorConfig tunes processing (concurrency, per-agent
	// serialization, deadlines, event buffers).
	OrchestratorConfig orchestrator.Config

	// KnowledgeStore is shared by every registered agent that embeds
	// agent.BaseAgent. Defaults to an in-memory store.
	KnowledgeStore core.KnowledgeStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// MetricsRegisterer enables Prometheus metrics when set.
	MetricsRegisterer prometheus.Registerer

	// MetricsNamespace prefixes metric names. Defaults to "brigade".
	MetricsNamespace string

	// TracerProvider defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

// Brigade is the high-level façade aggregating the orchestrator and services.
type Brigade struct {
	opts Options
	orch *orchestrator.Orchestrator
}

// New creates a new Brigade instance with optional overrides.
func New(optFns ...func(o *Options)) *Brigade {
	opts := Options{
		OrchestratorConfig: orchestrator.DefaultConfig,
		KnowledgeStore:     knowledge.NewInMemoryStore(),
		Logger:             logging.NoOpLogger{},
		MetricsNamespace:   "brigade",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	var metrics *orchestrator.Metrics
	if opts.MetricsRegisterer != nil {
		metrics = orchestrator.NewMetrics(opts.MetricsRegisterer, opts.MetricsNamespace)
	}

	orch := orchestrator.New(func(o *orchestrator.Options) {
		o.Config = opts.OrchestratorConfig
		o.Logger = opts.Logger
		o.Metrics = metrics
		o.TracerProvider = opts.TracerProvider
		o.KnowledgeStore = opts.KnowledgeStore
	})

	return &Brigade{opts: opts, orch: orch}
}

// Orchestrator exposes the underlying orchestrator for asynchronous use,
// callbacks and event subscriptions.
func (b *Brigade) Orchestrator() *orchestrator.Orchestrator { return b.orch }

// KnowledgeStore returns the shared knowledge store.
func (b *Brigade) KnowledgeStore() core.KnowledgeStore { return b.opts.KnowledgeStore }

// RegisterAgent adds an agent and attaches the shared knowledge store to it.
func (b *Brigade) RegisterAgent(a core.Agent) error { return b.orch.RegisterAgent(a) }

// RegisterWorkflow validates and registers a workflow definition.
func (b *Brigade) RegisterWorkflow(w core.Workflow) error { return b.orch.RegisterWorkflow(w) }

// Run executes a registered workflow and blocks until it completes, stalls or
// ctx is done. A root assignment failure is returned together with the
// status observed at that point.
func (b *Brigade) Run(ctx context.Context, workflowID string, values map[string]any) (orchestrator.WorkflowStatus, error) {
	if _, err := b.orch.ExecuteWorkflow(ctx, workflowID, values); err != nil {
		status, statusErr := b.orch.GetWorkflowStatus(workflowID)
		if statusErr != nil {
			return orchestrator.WorkflowStatus{}, err
		}
		return status, err
	}
	return b.orch.WaitForWorkflow(ctx, workflowID)
}

// RunTask creates a task, assigns it (auto-assigning when agentID is empty)
// and waits for its terminal status. A failed task is returned without error;
// inspect Task.Status and Task.Error.
func (b *Brigade) RunTask(ctx context.Context, draft core.TaskDraft, agentID string) (core.Task, error) {
	task := b.orch.AddTask(draft)
	if _, err := b.orch.AssignTask(task.ID, agentID); err != nil {
		return task, fmt.Errorf("run task %s: %w", task.ID, err)
	}
	return b.orch.WaitForTask(ctx, task.ID)
}

// Shutdown cancels in-flight processing and waits for it to drain.
func (b *Brigade) Shutdown(ctx context.Context) error { return b.orch.Shutdown(ctx) }
