package orchestrator

import (
	"context"
	"sync"

	"github.com/hupe1980/brigade/core"
)

// CallbackType defines the lifecycle points where callbacks can be executed.
//
// Callbacks hook into task processing without modifying the orchestrator:
//   - BeforeTask runs before the agent is invoked; an error fails the task
//   - AfterTask runs after a task completed successfully
//   - OnError runs after a task failed
//   - OnWorkflowComplete runs once every step of a workflow has completed
//
// Only BeforeTask can influence execution. Errors from the other types are
// logged and otherwise ignored since the task outcome is already recorded.
type CallbackType string

const (
	// CallbackBeforeTask is triggered before an agent processes a task.
	// Use for validation, auditing or rate limiting.
	CallbackBeforeTask CallbackType = "before_task"

	// CallbackAfterTask is triggered after a task completed.
	CallbackAfterTask CallbackType = "after_task"

	// CallbackOnError is triggered after a task failed.
	CallbackOnError CallbackType = "on_error"

	// CallbackOnWorkflowComplete is triggered when a workflow completes.
	CallbackOnWorkflowComplete CallbackType = "on_workflow_complete"
)

// CallbackContext carries the information available to a callback.
type CallbackContext struct {
	// Task is a snapshot of the task the callback concerns. Zero for
	// workflow-level callbacks.
	Task core.Task

	// AgentID identifies the processing agent, if any.
	AgentID string

	// WorkflowID is set for workflow tasks and workflow-level callbacks.
	WorkflowID string

	// Err is the processing error for OnError callbacks.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for task lifecycle hooks.
//
// Implementations should be fast since callbacks run synchronously on the
// processing goroutine.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	audit := NewFunctionCallback(
//	    CallbackAfterTask,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("task %s done by %s", cc.Task.ID, cc.AgentID)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks keyed by type. Callbacks run in
// registration order; the first error stops the chain. It is safe for
// concurrent registration and execution.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}
