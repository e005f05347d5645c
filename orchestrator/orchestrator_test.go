package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/internal/testutil"
	"github.com/hupe1980/brigade/knowledge"
)

func newTestOrchestrator(t *testing.T, optFns ...func(o *Options)) *Orchestrator {
	t.Helper()
	o := New(optFns...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Shutdown(ctx)
	})
	return o
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitTask(t *testing.T, o *Orchestrator, id string) core.Task {
	t.Helper()
	task, err := o.WaitForTask(waitCtx(t), id)
	require.NoError(t, err)
	return task
}

func TestRegisterAgent(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("writer", "draft")

	require.NoError(t, o.RegisterAgent(a))
	err := o.RegisterAgent(a)
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)

	got, ok := o.Agent(a.ID())
	require.True(t, ok)
	assert.Equal(t, a.ID(), got.ID())
	assert.Len(t, o.Agents(), 1)

	o.UnregisterAgent(a.ID())
	o.UnregisterAgent("missing")
	assert.Empty(t, o.Agents())
}

func TestRegisterAgent_AttachesKnowledgeStore(t *testing.T) {
	store := knowledge.NewInMemoryStore()
	o := newTestOrchestrator(t, func(o *Options) { o.KnowledgeStore = store })

	a := newBaseBackedAgent()
	require.Nil(t, a.KnowledgeStore())
	require.NoError(t, o.RegisterAgent(a))
	assert.Same(t, store, a.KnowledgeStore())
}

func TestAddTask_Defaults(t *testing.T) {
	o := newTestOrchestrator(t)

	task := o.AddTask(testutil.NewTaskBuilder("draft").Description("intro").Value("topic", "soup").Build())

	assert.NotEmpty(t, task.ID)
	assert.Equal(t, core.TaskStatusPending, task.Status)
	assert.Equal(t, core.PriorityMedium, task.Priority)
	assert.Equal(t, "soup", task.Context.GetString("topic"))
	assert.Empty(t, task.AssignedTo)
	assert.False(t, task.CreatedAt.IsZero())

	stored, err := o.GetTaskStatus(task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, stored.ID)

	_, err = o.GetTaskStatus("missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAddTask_SnapshotsAreIsolated(t *testing.T) {
	o := newTestOrchestrator(t)
	task := o.AddTask(testutil.NewTaskBuilder("draft").Value("k", "v").Build())

	task.Context.Values["k"] = "mutated"

	stored, err := o.GetTaskStatus(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "v", stored.Context.GetString("k"))
}

func TestAssignTask_AutoAssignPicksFirstCapable(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("a", "other")
	b := testutil.NewStubAgent("b", "draft")
	c := testutil.NewStubAgent("c", "draft")
	for _, ag := range []core.Agent{a, b, c} {
		require.NoError(t, o.RegisterAgent(ag))
	}

	task := o.AddTask(core.TaskDraft{Type: "draft"})
	assigned, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID(), assigned.AssignedTo)
	assert.Equal(t, core.TaskStatusInProgress, assigned.Status)

	done := waitTask(t, o, task.ID)
	assert.Equal(t, core.TaskStatusCompleted, done.Status)
	assert.Equal(t, "b:draft", done.Result)
	assert.Equal(t, b.ID(), done.AssignedTo)
	assert.Len(t, b.Seen(), 1)
	assert.Empty(t, c.Seen())
}

func TestAssignTask_Errors(t *testing.T) {
	o := newTestOrchestrator(t)
	writer := testutil.NewStubAgent("writer", "draft")
	require.NoError(t, o.RegisterAgent(writer))

	task := o.AddTask(core.TaskDraft{Type: "review"})

	_, err := o.AssignTask("missing", writer.ID())
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = o.AssignTask(task.ID, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = o.AssignTask(task.ID, writer.ID())
	assert.ErrorIs(t, err, core.ErrUnassignable)

	got, err := o.AssignTask(task.ID, "")
	assert.ErrorIs(t, err, core.ErrNoCapableAgent)
	assert.Equal(t, core.TaskStatusPending, got.Status)

	stored, err := o.GetTaskStatus(task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusPending, stored.Status)
	assert.Empty(t, stored.AssignedTo)
}

func TestAssignTask_TerminalTaskIsNotReassigned(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("writer", "draft")
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(core.TaskDraft{Type: "draft"})
	_, err := o.AssignTask(task.ID, a.ID())
	require.NoError(t, err)
	done := waitTask(t, o, task.ID)
	require.Equal(t, core.TaskStatusCompleted, done.Status)

	got, err := o.AssignTask(task.ID, a.ID())
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Equal(t, core.TaskStatusCompleted, got.Status)
	assert.Equal(t, done.Result, got.Result)

	o.Wait()
	assert.Len(t, a.Seen(), 1)
}

func TestAssignTask_InProgressTaskIsNotReassigned(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("writer", "draft")
	release := a.Gate()
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(core.TaskDraft{Type: "draft"})
	_, err := o.AssignTask(task.ID, a.ID())
	require.NoError(t, err)

	_, err = o.AssignTask(task.ID, a.ID())
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	release()
	assert.Equal(t, core.TaskStatusCompleted, waitTask(t, o, task.ID).Status)
}

func TestProcessing_FailureIsIsolated(t *testing.T) {
	o := newTestOrchestrator(t)
	bad := testutil.NewStubAgent("bad", "explode").FailWith(errors.New("boom"))
	good := testutil.NewStubAgent("good", "draft")
	require.NoError(t, o.RegisterAgent(bad))
	require.NoError(t, o.RegisterAgent(good))

	t1 := o.AddTask(core.TaskDraft{Type: "explode"})
	t2 := o.AddTask(core.TaskDraft{Type: "draft"})

	_, err := o.AssignTask(t1.ID, "")
	require.NoError(t, err, "processing errors are never returned by AssignTask")
	_, err = o.AssignTask(t2.ID, "")
	require.NoError(t, err)

	failed := waitTask(t, o, t1.ID)
	assert.Equal(t, core.TaskStatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.Error)
	assert.Equal(t, core.FailureResult("boom"), failed.Result)

	assert.Equal(t, core.TaskStatusCompleted, waitTask(t, o, t2.ID).Status)
}

func TestProcessing_PanicBecomesFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("chaos", "draft").PanicWith("kaput")
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(core.TaskDraft{Type: "draft"})
	_, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)

	failed := waitTask(t, o, task.ID)
	assert.Equal(t, core.TaskStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "panicked")
	assert.Contains(t, failed.Error, "kaput")
}

func TestProcessing_AgentReportedFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	a := newFuncAgent("auditor", "check", func(_ context.Context, task core.Task) (core.Task, error) {
		task.Status = core.TaskStatusFailed
		return task, nil
	})
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(core.TaskDraft{Type: "check"})
	_, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)

	failed := waitTask(t, o, task.ID)
	assert.Equal(t, core.TaskStatusFailed, failed.Status)
	assert.Equal(t, errAgentReportedFailure.Error(), failed.Error)
}

func TestProcessing_AgentCannotRewriteOwnedFields(t *testing.T) {
	o := newTestOrchestrator(t)
	a := newFuncAgent("sneaky", "draft", func(_ context.Context, task core.Task) (core.Task, error) {
		task.ID = "other"
		task.Type = "changed"
		task.AssignedTo = "nobody"
		task.Status = core.TaskStatusCompleted
		task.Result = "ok"
		return task, nil
	})
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(core.TaskDraft{Type: "draft"})
	_, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)

	done := waitTask(t, o, task.ID)
	assert.Equal(t, task.ID, done.ID)
	assert.Equal(t, "draft", done.Type)
	assert.Equal(t, a.ID(), done.AssignedTo)
	assert.Equal(t, "ok", done.Result)
}

func TestProcessing_DeadlineEnforced(t *testing.T) {
	o := newTestOrchestrator(t, func(o *Options) { o.Config.EnforceDeadlines = true })
	a := testutil.NewStubAgent("writer", "draft")
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(testutil.NewTaskBuilder("draft").Deadline(time.Now().Add(-time.Minute)).Build())
	_, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)

	failed := waitTask(t, o, task.ID)
	assert.Equal(t, core.TaskStatusFailed, failed.Status)
	assert.Equal(t, ErrDeadlineExceeded.Error(), failed.Error)
	assert.Empty(t, a.Seen())
}

func TestProcessing_DeadlineIgnoredByDefault(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("writer", "draft")
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(testutil.NewTaskBuilder("draft").Deadline(time.Now().Add(-time.Minute)).Build())
	_, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)

	assert.Equal(t, core.TaskStatusCompleted, waitTask(t, o, task.ID).Status)
}

func TestProcessing_SerializePerAgent(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("writer", "draft")
	release := a.Gate()
	require.NoError(t, o.RegisterAgent(a))

	var ids []string
	for range 3 {
		task := o.AddTask(core.TaskDraft{Type: "draft"})
		_, err := o.AssignTask(task.ID, a.ID())
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	require.Eventually(t, func() bool { return len(a.Seen()) == 1 }, time.Second, 5*time.Millisecond)
	release()

	for _, id := range ids {
		assert.Equal(t, core.TaskStatusCompleted, waitTask(t, o, id).Status)
	}
	assert.Equal(t, 1, a.MaxConcurrent())
}

func TestProcessing_ConcurrentWithoutSerialization(t *testing.T) {
	o := newTestOrchestrator(t, func(o *Options) { o.Config.SerializePerAgent = false })
	a := testutil.NewStubAgent("writer", "draft")
	release := a.Gate()
	require.NoError(t, o.RegisterAgent(a))

	var ids []string
	for range 2 {
		task := o.AddTask(core.TaskDraft{Type: "draft"})
		_, err := o.AssignTask(task.ID, a.ID())
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	require.Eventually(t, func() bool { return a.MaxConcurrent() == 2 }, time.Second, 5*time.Millisecond)
	release()
	for _, id := range ids {
		assert.Equal(t, core.TaskStatusCompleted, waitTask(t, o, id).Status)
	}
}

func TestProcessing_MaxConcurrentTasks(t *testing.T) {
	o := newTestOrchestrator(t, func(o *Options) {
		o.Config.SerializePerAgent = false
		o.Config.MaxConcurrentTasks = 1
	})
	a := testutil.NewStubAgent("writer", "draft")
	release := a.Gate()
	require.NoError(t, o.RegisterAgent(a))

	var ids []string
	for range 3 {
		task := o.AddTask(core.TaskDraft{Type: "draft"})
		_, err := o.AssignTask(task.ID, a.ID())
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	require.Eventually(t, func() bool { return len(a.Seen()) == 1 }, time.Second, 5*time.Millisecond)
	release()
	for _, id := range ids {
		assert.Equal(t, core.TaskStatusCompleted, waitTask(t, o, id).Status)
	}
	assert.Equal(t, 1, a.MaxConcurrent())
}

func TestProcessing_QueuedAgentDoesNotHoldSlots(t *testing.T) {
	o := newTestOrchestrator(t, func(o *Options) { o.Config.MaxConcurrentTasks = 2 })
	slow := testutil.NewStubAgent("writer", "draft")
	release := slow.Gate()
	defer release()
	fast := testutil.NewStubAgent("plater", "plate")
	require.NoError(t, o.RegisterAgent(slow))
	require.NoError(t, o.RegisterAgent(fast))

	for range 2 {
		task := o.AddTask(core.TaskDraft{Type: "draft"})
		_, err := o.AssignTask(task.ID, slow.ID())
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return len(slow.Seen()) == 1 }, time.Second, 5*time.Millisecond)

	plate := o.AddTask(core.TaskDraft{Type: "plate"})
	_, err := o.AssignTask(plate.ID, fast.ID())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := o.WaitForTask(ctx, plate.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusCompleted, got.Status)
	assert.Len(t, slow.Seen(), 1)
}

func TestWaitForTask_ContextExpiry(t *testing.T) {
	o := newTestOrchestrator(t)
	a := testutil.NewStubAgent("writer", "draft")
	release := a.Gate()
	defer release()
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(core.TaskDraft{Type: "draft"})
	_, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	got, err := o.WaitForTask(ctx, task.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, core.TaskStatusInProgress, got.Status)

	_, err = o.WaitForTask(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestShutdown_CancelsInFlight(t *testing.T) {
	o := New()
	a := testutil.NewStubAgent("writer", "draft")
	a.Gate()
	require.NoError(t, o.RegisterAgent(a))

	task := o.AddTask(core.TaskDraft{Type: "draft"})
	_, err := o.AssignTask(task.ID, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(a.Seen()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, o.Shutdown(waitCtx(t)))

	failed, err := o.GetTaskStatus(task.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TaskStatusFailed, failed.Status)

	late := o.AddTask(core.TaskDraft{Type: "draft"})
	got, err := o.AssignTask(late.ID, "")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, core.TaskStatusPending, got.Status)
	assert.Empty(t, got.AssignedTo)
	assert.Len(t, a.Seen(), 1)
}

func TestShutdown_ConcurrentAssign(t *testing.T) {
	o := New()
	a := testutil.NewStubAgent("writer", "draft")
	require.NoError(t, o.RegisterAgent(a))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := o.AddTask(core.TaskDraft{Type: "draft"})
			if _, err := o.AssignTask(task.ID, ""); err != nil {
				assert.ErrorIs(t, err, ErrClosed)
			}
		}()
	}
	require.NoError(t, o.Shutdown(waitCtx(t)))
	wg.Wait()

	for _, task := range o.Tasks() {
		assert.NotEqual(t, core.TaskStatusInProgress, task.Status)
	}
}

func TestTasks_CreationOrder(t *testing.T) {
	o := newTestOrchestrator(t)
	first := o.AddTask(core.TaskDraft{Type: "a"})
	second := o.AddTask(core.TaskDraft{Type: "b"})

	tasks := o.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, first.ID, tasks[0].ID)
	assert.Equal(t, second.ID, tasks[1].ID)
}
