package core

import (
	"time"

	"github.com/google/uuid"
)

// TaskEventType categorizes orchestrator notifications.
type TaskEventType string

const (
	EventTaskCreated       TaskEventType = "task_created"
	EventTaskAssigned      TaskEventType = "task_assigned"
	EventTaskCompleted     TaskEventType = "task_completed"
	EventTaskFailed        TaskEventType = "task_failed"
	EventWorkflowStarted   TaskEventType = "workflow_started"
	EventWorkflowCompleted TaskEventType = "workflow_completed"
	EventWorkflowStalled   TaskEventType = "workflow_stalled"
)

// TaskEvent is emitted by the orchestrator after a state change. Task holds a
// snapshot and is zero for workflow-level events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Type       TaskEventType `json:"type"`
	Task       Task          `json:"task"`
	WorkflowID string        `json:"workflowId,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewTaskEvent builds an event for a task snapshot.
func NewTaskEvent(t TaskEventType, task Task) TaskEvent {
	return TaskEvent{
		ID:         NewID(),
		Type:       t,
		Task:       task,
		WorkflowID: task.Context.WorkflowID,
		Timestamp:  time.Now().UTC(),
	}
}

// NewWorkflowEvent builds a workflow-level event.
func NewWorkflowEvent(t TaskEventType, workflowID string) TaskEvent {
	return TaskEvent{
		ID:         NewID(),
		Type:       t,
		WorkflowID: workflowID,
		Timestamp:  time.Now().UTC(),
	}
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }
