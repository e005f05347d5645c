package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/internal/testutil"
)

func drain(ch <-chan core.TaskEvent) []core.TaskEventType {
	var types []core.TaskEventType
	for {
		select {
		case ev := <-ch:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func TestSubscribe_WorkflowEventSequence(t *testing.T) {
	o := newTestOrchestrator(t)
	require.NoError(t, o.RegisterAgent(testutil.NewStubAgent("writer", "draft")))
	require.NoError(t, o.RegisterWorkflow(testutil.NewWorkflowBuilder("w").Step("s1", "draft").Build()))

	events, cancel := o.Subscribe(0)
	defer cancel()

	_, err := o.ExecuteWorkflow(context.Background(), "w", nil)
	require.NoError(t, err)
	waitWorkflow(t, o, "w")

	assert.Equal(t, []core.TaskEventType{
		core.EventWorkflowStarted,
		core.EventTaskCreated,
		core.EventTaskAssigned,
		core.EventTaskCompleted,
		core.EventWorkflowCompleted,
	}, drain(events))
}

func TestSubscribe_DropsForSlowSubscriber(t *testing.T) {
	o := newTestOrchestrator(t)
	events, cancel := o.Subscribe(1)
	defer cancel()

	first := o.AddTask(core.TaskDraft{Type: "a"})
	o.AddTask(core.TaskDraft{Type: "b"})

	ev := <-events
	assert.Equal(t, core.EventTaskCreated, ev.Type)
	assert.Equal(t, first.ID, ev.Task.ID)
	assert.Empty(t, drain(events))
}

func TestSubscribe_CancelClosesChannel(t *testing.T) {
	o := newTestOrchestrator(t)
	events, cancel := o.Subscribe(4)
	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)

	o.AddTask(core.TaskDraft{Type: "a"})
}
