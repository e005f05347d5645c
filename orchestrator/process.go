package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/brigade/core"
)

// ErrDeadlineExceeded fails a task whose deadline passed before processing
// started. Only used when Config.EnforceDeadlines is set.
var ErrDeadlineExceeded = errors.New("task deadline exceeded")

// errAgentReportedFailure is recorded when an agent returns a failed task
// without an error message.
var errAgentReportedFailure = errors.New("agent reported failure")

// process runs one assigned task on its agent and records the outcome.
func (o *Orchestrator) process(task core.Task, a core.Agent) {
	defer o.wg.Done()

	ctx := o.baseCtx

	// Agent slot before processing slot: queued tasks never hold the semaphore.
	if o.config.SerializePerAgent {
		slot := o.agentSlot(a.ID())
		select {
		case slot <- struct{}{}:
			defer func() { <-slot }()
		case <-ctx.Done():
			o.finish(task, a, task, fmt.Errorf("processing cancelled: %w", ctx.Err()), 0)
			return
		}
	}

	if err := o.sem.Acquire(ctx, 1); err != nil {
		o.finish(task, a, task, fmt.Errorf("processing cancelled: %w", err), 0)
		return
	}
	defer o.sem.Release(1)

	o.metrics.inFlight(1)
	defer o.metrics.inFlight(-1)

	ctx, span := o.tracer.Start(ctx, "brigade.process_task", trace.WithAttributes(
		attribute.String("brigade.task.id", task.ID),
		attribute.String("brigade.task.type", task.Type),
		attribute.String("brigade.agent.id", a.ID()),
		attribute.String("brigade.agent.role", a.Role()),
		attribute.String("brigade.workflow.id", task.Context.WorkflowID),
		attribute.String("brigade.workflow.step", task.Context.StepID),
	))
	defer span.End()

	start := time.Now()
	out, err := o.invoke(ctx, task, a)
	final := o.finish(task, a, out, err, time.Since(start))

	span.SetAttributes(attribute.String("brigade.task.status", string(final.Status)))
	if final.Status == core.TaskStatusFailed {
		span.SetStatus(codes.Error, final.Error)
		if err != nil {
			span.RecordError(err)
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
}

// agentSlot returns the single-slot channel serializing an agent.
func (o *Orchestrator) agentSlot(agentID string) chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	slot, ok := o.agentSlots[agentID]
	if !ok {
		slot = make(chan struct{}, 1)
		o.agentSlots[agentID] = slot
	}
	return slot
}

// invoke runs before-task callbacks and the agent, converting panics into errors.
func (o *Orchestrator) invoke(ctx context.Context, task core.Task, a core.Agent) (out core.Task, err error) {
	if err := ctx.Err(); err != nil {
		return task, fmt.Errorf("processing cancelled: %w", err)
	}

	if o.config.EnforceDeadlines && task.Deadline != nil {
		if !time.Now().Before(*task.Deadline) {
			return task, ErrDeadlineExceeded
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, *task.Deadline)
		defer cancel()
	}

	if err := o.callbacks.ExecuteCallbacks(ctx, CallbackBeforeTask, &CallbackContext{
		Task:       task.Clone(),
		AgentID:    a.ID(),
		WorkflowID: task.Context.WorkflowID,
	}); err != nil {
		return task, fmt.Errorf("before_task callback: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = task, fmt.Errorf("agent %s panicked: %v", a.ID(), r)
		}
	}()

	return a.Process(ctx, task.Clone())
}

// finish records the processing outcome, resolves workflow dependencies for
// completed tasks and fires callbacks. It returns the stored task.
func (o *Orchestrator) finish(task core.Task, a core.Agent, out core.Task, procErr error, dur time.Duration) core.Task {
	o.mu.Lock()

	cur, ok := o.tasks[task.ID]
	if !ok {
		cur = task
	}

	// The agent decides the outcome only; every other field stays as assigned.
	final := cur
	switch {
	case procErr != nil:
		final.Status = core.TaskStatusFailed
		final.Result = core.FailureResult(procErr.Error())
		final.Error = procErr.Error()
	case out.Status == core.TaskStatusFailed:
		msg := out.Error
		if msg == "" {
			msg = errAgentReportedFailure.Error()
		}
		procErr = errors.New(msg)
		final.Status = core.TaskStatusFailed
		final.Result = out.Result
		if final.Result == nil {
			final.Result = core.FailureResult(msg)
		}
		final.Error = msg
	default:
		final.Status = core.TaskStatusCompleted
		final.Result = out.Result
		final.Error = ""
	}
	final.UpdatedAt = time.Now()

	o.tasks[final.ID] = final

	o.metrics.transition(final.Status)
	o.metrics.processed(a.Role(), final.Status, dur)
	o.logTransition(final, core.TaskStatusInProgress, dur, procErr)

	var completedWorkflows []string
	if final.Status == core.TaskStatusCompleted {
		o.events.publish(core.NewTaskEvent(core.EventTaskCompleted, final.Clone()))
		completedWorkflows = o.resolveLocked(final)
	} else {
		o.events.publish(core.NewTaskEvent(core.EventTaskFailed, final.Clone()))
	}
	o.checkStalledLocked(final.Context.WorkflowID)
	o.notifyLocked()

	snapshot := final.Clone()
	o.mu.Unlock()

	o.runCompletionCallbacks(snapshot, a, procErr, completedWorkflows)
	return snapshot
}

func (o *Orchestrator) runCompletionCallbacks(task core.Task, a core.Agent, procErr error, completedWorkflows []string) {
	ctx := context.Background()

	cc := &CallbackContext{
		Task:       task,
		AgentID:    a.ID(),
		WorkflowID: task.Context.WorkflowID,
		Err:        procErr,
	}

	callbackType := CallbackAfterTask
	if task.Status == core.TaskStatusFailed {
		callbackType = CallbackOnError
	}
	if err := o.callbacks.ExecuteCallbacks(ctx, callbackType, cc); err != nil {
		o.logger.Warn("callback failed", "type", string(callbackType), "task_id", task.ID, "error", err.Error())
	}

	for _, wfID := range completedWorkflows {
		if err := o.callbacks.ExecuteCallbacks(ctx, CallbackOnWorkflowComplete, &CallbackContext{WorkflowID: wfID}); err != nil {
			o.logger.Warn("callback failed", "type", string(CallbackOnWorkflowComplete), "workflow_id", wfID, "error", err.Error())
		}
	}
}
