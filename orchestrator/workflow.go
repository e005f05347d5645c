package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/internal/util"
	"github.com/hupe1980/brigade/workflow"
)

// ErrWorkflowRunning is returned when executing a workflow that still has
// tasks in progress.
var ErrWorkflowRunning = errors.New("workflow has tasks in progress")

// WorkflowState summarizes a workflow's progress.
type WorkflowState string

const (
	// WorkflowIdle means the workflow is registered but not running.
	WorkflowIdle WorkflowState = "idle"
	// WorkflowActive means at least one of its tasks is being processed.
	WorkflowActive WorkflowState = "active"
	// WorkflowCompleted means every step has a completed task.
	WorkflowCompleted WorkflowState = "completed"
	// WorkflowStalled means the workflow is active but nothing is in progress
	// and it is not complete: a step failed, a condition was false or an
	// assignment failed. It stays active until re-executed.
	WorkflowStalled WorkflowState = "stalled"
)

// WorkflowStatus is a snapshot of a workflow's progress.
type WorkflowStatus struct {
	WorkflowID     string
	State          WorkflowState
	CompletedSteps []string
	PendingSteps   []string
	Tasks          []core.Task
	StartedAt      time.Time
}

// activation tracks one ExecuteWorkflow run.
type activation struct {
	startedAt time.Time
	spawned   map[string]bool // step ids with a task in this activation
	stalled   bool            // stalled event already emitted
}

// RegisterWorkflow validates and stores a copy of w.
func (o *Orchestrator) RegisterWorkflow(w core.Workflow) error {
	if err := workflow.Validate(w); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.workflows[w.ID]; ok {
		return fmt.Errorf("workflow %s: %w", w.ID, core.ErrAlreadyRegistered)
	}
	o.workflows[w.ID] = w.Clone()
	o.logger.Info("workflow registered", "workflow_id", w.ID, "steps", len(w.Steps))
	return nil
}

// Workflow returns a registered workflow definition.
func (o *Orchestrator) Workflow(workflowID string) (core.Workflow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workflows[workflowID]
	if !ok {
		return core.Workflow{}, false
	}
	return w.Clone(), true
}

// ExecuteWorkflow activates a workflow and spawns a task for every root step
// (a step without dependencies) whose condition holds for values. Root steps
// are assigned in declaration order: to the first agent with the step's
// AgentRole, or by auto-assignment when the role is empty or unknown.
//
// The spawned root tasks are returned. If an assignment fails, execution
// stops: the tasks spawned so far (the failing one left pending) are returned
// with the error, and the workflow remains active. Dependent steps are spawned
// as their dependencies complete.
//
// A stalled workflow can be executed again. While one of its tasks is still
// in progress ExecuteWorkflow returns ErrWorkflowRunning.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, values map[string]any) ([]core.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, span := o.tracer.Start(ctx, "brigade.execute_workflow", trace.WithAttributes(
		attribute.String("brigade.workflow.id", workflowID),
	))
	defer span.End()

	o.mu.Lock()
	defer o.mu.Unlock()

	w, ok := o.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, core.ErrNotFound)
	}
	if _, running := o.active[workflowID]; running && o.hasInProgressLocked(workflowID) {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, ErrWorkflowRunning)
	}

	act := &activation{startedAt: time.Now(), spawned: make(map[string]bool)}
	o.active[workflowID] = act
	delete(o.completed, workflowID)

	o.metrics.workflowStarted(len(o.active))
	o.events.publish(core.NewWorkflowEvent(core.EventWorkflowStarted, workflowID))
	o.logger.Info("workflow started", "workflow_id", workflowID)

	base := core.TaskContext{Values: values}.Clone()
	base.WorkflowID = workflowID

	var spawned []core.Task
	for _, step := range w.Steps {
		if step.HasDependencies() {
			continue
		}

		stepCtx := base.Clone()
		stepCtx.StepID = step.ID
		if step.Condition != nil && !step.Condition(stepCtx) {
			o.logger.Debug("step condition false, skipping", "workflow_id", workflowID, "step_id", step.ID)
			continue
		}

		task, err := o.spawnStepLocked(act, step, stepCtx)
		spawned = append(spawned, task)
		if err != nil {
			o.checkStalledLocked(workflowID)
			return spawned, fmt.Errorf("workflow %s step %s: %w", workflowID, step.ID, err)
		}
	}

	o.checkStalledLocked(workflowID)
	span.SetAttributes(attribute.Int("brigade.workflow.root_tasks", len(spawned)))
	return spawned, nil
}

// spawnStepLocked creates the task for a step and assigns it. The created
// task is returned even when assignment fails; it then stays pending.
func (o *Orchestrator) spawnStepLocked(act *activation, step core.WorkflowStep, stepCtx core.TaskContext) (core.Task, error) {
	act.spawned[step.ID] = true

	task := o.addTaskLocked(core.TaskDraft{
		Type:        step.TaskType,
		Priority:    core.PriorityMedium,
		Description: o.stepDescription(step, stepCtx),
		Context:     stepCtx,
	})

	a, err := o.selectForStepLocked(task, step)
	if err != nil {
		return task.Clone(), err
	}
	return o.assignLocked(task, a)
}

func (o *Orchestrator) stepDescription(step core.WorkflowStep, stepCtx core.TaskContext) string {
	if !o.config.RenderDescriptions {
		return step.Description
	}
	desc, err := util.RenderDescription(step.Description, stepCtx.Values)
	if err != nil {
		o.logger.Warn("step description not rendered", "workflow_id", stepCtx.WorkflowID, "step_id", step.ID, "error", err.Error())
		return step.Description
	}
	return desc
}

func (o *Orchestrator) selectForStepLocked(task core.Task, step core.WorkflowStep) (core.Agent, error) {
	if step.AgentRole == "" {
		return o.selectCapableLocked(task)
	}
	for _, a := range o.agents {
		if a.Role() == step.AgentRole {
			return o.selectAgentLocked(task, a.ID())
		}
	}
	o.logger.Warn("no agent with role, falling back to auto-assignment",
		"workflow_id", task.Context.WorkflowID, "step_id", step.ID, "role", step.AgentRole)
	return o.selectCapableLocked(task)
}

// resolveLocked spawns the steps unblocked by a completed workflow task and
// returns the ids of workflows that completed as a result.
func (o *Orchestrator) resolveLocked(done core.Task) []string {
	wfID, stepID := done.Context.WorkflowID, done.Context.StepID
	if wfID == "" || stepID == "" {
		return nil
	}
	act, ok := o.active[wfID]
	if !ok {
		return nil
	}
	w := o.workflows[wfID]

	completedSteps := o.completedStepsLocked(wfID)

	for _, step := range w.Steps {
		if !step.DependsOn(stepID) || act.spawned[step.ID] {
			continue
		}
		if !allCompleted(step.Dependencies, completedSteps) {
			continue
		}

		stepCtx := done.Context.Clone()
		stepCtx.StepID = step.ID
		stepCtx.PreviousResults = done.Result

		if o.config.CheckConditionsOnResolve && step.Condition != nil && !step.Condition(stepCtx) {
			o.logger.Debug("step condition false, skipping", "workflow_id", wfID, "step_id", step.ID)
			act.spawned[step.ID] = true
			continue
		}

		if _, err := o.spawnStepLocked(act, step, stepCtx); err != nil {
			o.logger.Error("dependent step left pending", "workflow_id", wfID, "step_id", step.ID, "error", err.Error())
		}
	}

	if !o.isCompleteLocked(w) {
		return nil
	}

	delete(o.active, wfID)
	o.completed[wfID] = true
	o.metrics.workflowCompleted(len(o.active))
	o.events.publish(core.NewWorkflowEvent(core.EventWorkflowCompleted, wfID))
	o.logWorkflow(wfID, act, WorkflowCompleted)
	return []string{wfID}
}

func allCompleted(deps []string, completed map[string]bool) bool {
	for _, d := range deps {
		if !completed[d] {
			return false
		}
	}
	return true
}

// completedStepsLocked returns the step ids with at least one completed task
// in the workflow.
func (o *Orchestrator) completedStepsLocked(workflowID string) map[string]bool {
	steps := make(map[string]bool)
	for _, t := range o.tasks {
		if t.Status == core.TaskStatusCompleted && t.Context.WorkflowID == workflowID && t.Context.StepID != "" {
			steps[t.Context.StepID] = true
		}
	}
	return steps
}

func (o *Orchestrator) isCompleteLocked(w core.Workflow) bool {
	return allCompleted(stepIDs(w), o.completedStepsLocked(w.ID))
}

func stepIDs(w core.Workflow) []string {
	ids := make([]string, len(w.Steps))
	for i, s := range w.Steps {
		ids[i] = s.ID
	}
	return ids
}

func (o *Orchestrator) activationLocked(task core.Task) *activation {
	if task.Context.WorkflowID == "" {
		return nil
	}
	return o.active[task.Context.WorkflowID]
}

func (o *Orchestrator) hasInProgressLocked(workflowID string) bool {
	for _, t := range o.tasks {
		if t.Context.WorkflowID == workflowID && t.Status == core.TaskStatusInProgress {
			return true
		}
	}
	return false
}

// checkStalledLocked emits a stalled event once per stall of an active workflow.
func (o *Orchestrator) checkStalledLocked(workflowID string) {
	if workflowID == "" {
		return
	}
	act, ok := o.active[workflowID]
	if !ok || act.stalled || o.hasInProgressLocked(workflowID) {
		return
	}
	act.stalled = true
	o.events.publish(core.NewWorkflowEvent(core.EventWorkflowStalled, workflowID))
	o.logWorkflow(workflowID, act, WorkflowStalled)
}

type workflowLogger interface {
	LogWorkflowExecution(workflowID string, tasks int, dur time.Duration, state string)
}

func (o *Orchestrator) logWorkflow(workflowID string, act *activation, state WorkflowState) {
	tasks := len(act.spawned)
	dur := time.Since(act.startedAt)
	if wl, ok := o.logger.(workflowLogger); ok {
		wl.LogWorkflowExecution(workflowID, tasks, dur, string(state))
		return
	}
	level := o.logger.Info
	if state == WorkflowStalled {
		level = o.logger.Warn
	}
	level("workflow "+string(state), "workflow_id", workflowID, "tasks", tasks, "duration", dur)
}

// GetWorkflowStatus reports the state of a registered workflow.
func (o *Orchestrator) GetWorkflowStatus(workflowID string) (WorkflowStatus, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.workflowStatusLocked(workflowID)
}

func (o *Orchestrator) workflowStatusLocked(workflowID string) (WorkflowStatus, error) {
	w, ok := o.workflows[workflowID]
	if !ok {
		return WorkflowStatus{}, fmt.Errorf("workflow %s: %w", workflowID, core.ErrNotFound)
	}

	completed := o.completedStepsLocked(workflowID)
	status := WorkflowStatus{
		WorkflowID: workflowID,
		Tasks:      o.filterTasksLocked(func(t core.Task) bool { return t.Context.WorkflowID == workflowID }),
	}
	for _, s := range w.Steps {
		if completed[s.ID] {
			status.CompletedSteps = append(status.CompletedSteps, s.ID)
		} else {
			status.PendingSteps = append(status.PendingSteps, s.ID)
		}
	}

	act, active := o.active[workflowID]
	switch {
	case active && o.hasInProgressLocked(workflowID):
		status.State = WorkflowActive
		status.StartedAt = act.startedAt
	case active:
		status.State = WorkflowStalled
		status.StartedAt = act.startedAt
	case o.completed[workflowID]:
		status.State = WorkflowCompleted
	default:
		status.State = WorkflowIdle
	}
	return status, nil
}

// ActiveWorkflows returns the ids of active (including stalled) workflows, sorted.
func (o *Orchestrator) ActiveWorkflows() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IsWorkflowActive reports whether the workflow is in the active set.
func (o *Orchestrator) IsWorkflowActive(workflowID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.active[workflowID]
	return ok
}

// WaitForWorkflow blocks until the workflow is completed, stalled or idle, or
// ctx is done.
func (o *Orchestrator) WaitForWorkflow(ctx context.Context, workflowID string) (WorkflowStatus, error) {
	for {
		o.mu.RLock()
		status, err := o.workflowStatusLocked(workflowID)
		changed := o.changed
		o.mu.RUnlock()

		if err != nil {
			return WorkflowStatus{}, err
		}
		if status.State != WorkflowActive {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-changed:
		}
	}
}

// Workflows returns the ids of registered workflows, sorted.
func (o *Orchestrator) Workflows() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ids := make([]string, 0, len(o.workflows))
	for id := range o.workflows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
