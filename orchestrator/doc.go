// Package orchestrator is the scheduler of brigade: it owns tasks, the
// registered agents and workflow definitions, assigns tasks to agents and
// resolves workflow step dependencies as tasks complete.
//
// Task lifecycle:
//
//	pending --AssignTask--> in-progress --Process ok----> completed
//	                                    --Process error--> failed
//
// Completed and failed are terminal; AssignTask on a non-pending task returns
// core.ErrInvalidTransition. Processing errors and panics never reach the
// caller of AssignTask. They are recorded on the task as
// Result = {"error": message}.
//
// Workflows:
//
//	o := orchestrator.New()
//	_ = o.RegisterAgent(writer)   // role "writer", capability "draft"
//	_ = o.RegisterAgent(reviewer) // role "reviewer", capability "review"
//	_ = o.RegisterWorkflow(core.Workflow{
//	    ID: "article",
//	    Steps: []core.WorkflowStep{
//	        {ID: "s1", TaskType: "draft", AgentRole: "writer"},
//	        {ID: "s2", TaskType: "review", AgentRole: "reviewer", Dependencies: []string{"s1"}},
//	    },
//	})
//	_, _ = o.ExecuteWorkflow(ctx, "article", nil)
//	status, _ := o.WaitForWorkflow(ctx, "article")
//
// A step becomes eligible once every dependency has at least one completed
// task in the workflow; its task carries the unblocking task's result in
// Context.PreviousResults. Failed tasks never unblock dependents. A workflow
// that can make no further progress is reported as stalled and stays active.
//
// Observability: structured logging through logging.Logger, Prometheus
// metrics (NewMetrics), an OpenTelemetry span per processed task, lifecycle
// callbacks (CallbackManager) and an event stream (Subscribe).
package orchestrator
