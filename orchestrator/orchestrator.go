package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/logging"
)

const tracerName = "github.com/hupe1980/brigade/orchestrator"

// ErrClosed is returned when assigning a task after Shutdown.
var ErrClosed = errors.New("orchestrator is shut down")

// Config defines tuning parameters for task processing.
//
// Example:
//
//	cfg := Config{
//	    MaxConcurrentTasks: 50,
//	    SerializePerAgent:  true,
//	    EventBufferSize:    256,
//	}
type Config struct {
	// MaxConcurrentTasks bounds the number of agent Process calls running at
	// once across all agents. Values below 1 are treated as 1.
	MaxConcurrentTasks int

	// SerializePerAgent makes a single agent instance process at most one
	// task at a time. Tasks for the same agent wait for the agent before
	// taking a processing slot, so a slow agent never starves the others.
	SerializePerAgent bool

	// EnforceDeadlines derives the processing context from Task.Deadline and
	// fails tasks whose deadline already passed without invoking the agent.
	EnforceDeadlines bool

	// CheckConditionsOnResolve evaluates step conditions for steps spawned by
	// dependency resolution too. By default conditions gate root steps only.
	CheckConditionsOnResolve bool

	// RenderDescriptions expands step descriptions as text/templates over the
	// workflow context values. By default the description is copied as is.
	// A description that fails to render is kept verbatim.
	RenderDescriptions bool

	// EventBufferSize is the default buffer of event subscriptions.
	EventBufferSize int
}

// DefaultConfig provides the default configuration values:
//   - MaxConcurrentTasks: 10
//   - SerializePerAgent: true
//   - EventBufferSize: 64
var DefaultConfig = Config{
	MaxConcurrentTasks: 10,
	SerializePerAgent:  true,
	EventBufferSize:    64,
}

// Options configures an Orchestrator instance using the functional options pattern.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Logger defaults to a NoOp logger.
	Logger logging.Logger

	// Metrics records Prometheus metrics when set.
	Metrics *Metrics

	// TracerProvider defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider

	// Callbacks defaults to an empty manager.
	Callbacks *CallbackManager

	// KnowledgeStore, when set, is attached on registration to agents that
	// support SetKnowledgeStore and have no store yet.
	KnowledgeStore core.KnowledgeStore
}

type knowledgeAware interface {
	KnowledgeStore() core.KnowledgeStore
	SetKnowledgeStore(store core.KnowledgeStore)
}

// Orchestrator owns tasks, registered agents and workflows. It assigns tasks
// to agents, processes them on a bounded pool of goroutines and resolves
// workflow step dependencies as tasks complete.
//
// Concurrency Model:
//   - All state lives behind one mutex; dependency resolution runs in the
//     same critical section as the completed-status write, so concurrent
//     completions can never spawn a step twice
//   - AssignTask returns the post-assignment snapshot immediately; agents
//     run on their own goroutine bounded by a weighted semaphore
//   - Processing failures (errors and panics) become task data; they are
//     never returned to the caller of AssignTask
//
// Observe outcomes with GetTaskStatus, WaitForTask, WaitForWorkflow,
// Subscribe or callbacks.
type Orchestrator struct {
	config    Config
	logger    logging.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	callbacks *CallbackManager
	store     core.KnowledgeStore
	events    *eventBus
	sem       *semaphore.Weighted

	// Processing context, cancelled by Shutdown.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.RWMutex
	tasks      map[string]core.Task
	taskOrder  []string
	agents     []core.Agent // registration order
	agentSlots map[string]chan struct{}
	workflows  map[string]core.Workflow
	active     map[string]*activation
	completed  map[string]bool
	changed    chan struct{} // closed and replaced on every task transition
	closed     bool
}

// New creates an Orchestrator with sensible defaults.
//
// Examples:
//
//	// Minimal setup with all defaults
//	o := New()
//
//	// Metrics, tracing and a shared knowledge store
//	o := New(func(o *Options) {
//	    o.Metrics = NewMetrics(prometheus.DefaultRegisterer, "brigade")
//	    o.TracerProvider = tp
//	    o.KnowledgeStore = knowledge.NewInMemoryStore()
//	})
func New(optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Config.MaxConcurrentTasks < 1 {
		opts.Config.MaxConcurrentTasks = 1
	}
	if opts.Config.EventBufferSize < 1 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		config:    opts.Config,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		tracer:    opts.TracerProvider.Tracer(tracerName),
		callbacks: opts.Callbacks,
		store:     opts.KnowledgeStore,
		events:    newEventBus(opts.Logger),
		sem:       semaphore.NewWeighted(int64(opts.Config.MaxConcurrentTasks)),

		baseCtx: ctx,
		cancel:  cancel,

		tasks:      make(map[string]core.Task),
		agentSlots: make(map[string]chan struct{}),
		workflows:  make(map[string]core.Workflow),
		active:     make(map[string]*activation),
		completed:  make(map[string]bool),
		changed:    make(chan struct{}),
	}
}

// Callbacks returns the callback manager for registering lifecycle hooks.
func (o *Orchestrator) Callbacks() *CallbackManager { return o.callbacks }

// RegisterAgent adds an agent. Auto-assignment considers agents in
// registration order.
func (o *Orchestrator) RegisterAgent(a core.Agent) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, existing := range o.agents {
		if existing.ID() == a.ID() {
			return fmt.Errorf("agent %s: %w", a.ID(), core.ErrAlreadyRegistered)
		}
	}

	if ka, ok := a.(knowledgeAware); ok && o.store != nil && ka.KnowledgeStore() == nil {
		ka.SetKnowledgeStore(o.store)
	}

	o.agents = append(o.agents, a)
	if _, ok := o.agentSlots[a.ID()]; !ok {
		o.agentSlots[a.ID()] = make(chan struct{}, 1)
	}
	o.logger.Info("agent registered", "agent_id", a.ID(), "name", a.Name(), "role", a.Role())
	return nil
}

// UnregisterAgent removes an agent. Tasks it is already processing run to
// completion. Unknown ids are ignored with a warning.
func (o *Orchestrator) UnregisterAgent(agentID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := slices.IndexFunc(o.agents, func(a core.Agent) bool { return a.ID() == agentID })
	if i < 0 {
		o.logger.Warn("unregister of unknown agent", "agent_id", agentID)
		return
	}
	o.agents = slices.Delete(o.agents, i, i+1)
	o.logger.Info("agent unregistered", "agent_id", agentID)
}

// Agents returns the registered agents in registration order.
func (o *Orchestrator) Agents() []core.Agent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.agents)
}

// Agent looks up a registered agent by id.
func (o *Orchestrator) Agent(agentID string) (core.Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.agentLocked(agentID)
}

func (o *Orchestrator) agentLocked(agentID string) (core.Agent, bool) {
	for _, a := range o.agents {
		if a.ID() == agentID {
			return a, true
		}
	}
	return nil, false
}

// AddTask creates a pending task from draft. It never fails.
func (o *Orchestrator) AddTask(draft core.TaskDraft) core.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addTaskLocked(draft).Clone()
}

func (o *Orchestrator) addTaskLocked(draft core.TaskDraft) core.Task {
	now := time.Now()
	priority := draft.Priority
	if priority == "" {
		priority = core.PriorityMedium
	}

	task := core.Task{
		ID:           core.NewID(),
		Type:         draft.Type,
		Priority:     priority,
		Status:       core.TaskStatusPending,
		Description:  draft.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
		Deadline:     draft.Deadline,
		Dependencies: slices.Clone(draft.Dependencies),
		Context:      draft.Context.Clone(),
	}
	task = task.Clone()

	o.tasks[task.ID] = task
	o.taskOrder = append(o.taskOrder, task.ID)

	o.metrics.taskCreated(task.Type)
	o.metrics.transition(core.TaskStatusPending)
	o.events.publish(core.NewTaskEvent(core.EventTaskCreated, task.Clone()))
	o.logger.Debug("task created", "task_id", task.ID, "type", task.Type)
	return task
}

// AssignTask assigns a pending task and starts processing it in the
// background. An empty agentID auto-assigns to the first registered agent
// whose CanProcess accepts the task.
//
// Errors:
//   - core.ErrNotFound for an unknown task or agent
//   - core.ErrInvalidTransition if the task is not pending
//   - core.ErrUnassignable if the requested agent cannot process the task
//   - core.ErrNoCapableAgent if auto-assignment finds no agent
//   - ErrClosed after Shutdown
//
// On error the task is left unchanged.
func (o *Orchestrator) AssignTask(taskID, agentID string) (core.Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	task, ok := o.tasks[taskID]
	if !ok {
		return core.Task{}, fmt.Errorf("task %s: %w", taskID, core.ErrNotFound)
	}

	var (
		a   core.Agent
		err error
	)
	if agentID == "" {
		a, err = o.selectCapableLocked(task)
	} else {
		a, err = o.selectAgentLocked(task, agentID)
	}
	if err != nil {
		return task.Clone(), err
	}

	return o.assignLocked(task, a)
}

func (o *Orchestrator) selectAgentLocked(task core.Task, agentID string) (core.Agent, error) {
	a, ok := o.agentLocked(agentID)
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", agentID, core.ErrNotFound)
	}
	if !a.CanProcess(task) {
		return nil, fmt.Errorf("agent %s, task type %q: %w", agentID, task.Type, core.ErrUnassignable)
	}
	return a, nil
}

func (o *Orchestrator) selectCapableLocked(task core.Task) (core.Agent, error) {
	for _, a := range o.agents {
		if a.CanProcess(task) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("task type %q: %w", task.Type, core.ErrNoCapableAgent)
}

// assignLocked moves a pending task to in-progress and submits it for processing.
func (o *Orchestrator) assignLocked(task core.Task, a core.Agent) (core.Task, error) {
	if task.Status != core.TaskStatusPending {
		return task.Clone(), fmt.Errorf("task %s is %s: %w", task.ID, task.Status, core.ErrInvalidTransition)
	}
	if o.closed {
		return task.Clone(), fmt.Errorf("task %s: %w", task.ID, ErrClosed)
	}

	task.AssignedTo = a.ID()
	task.Status = core.TaskStatusInProgress
	task.UpdatedAt = time.Now()
	o.tasks[task.ID] = task

	if act := o.activationLocked(task); act != nil {
		act.stalled = false
	}

	o.metrics.transition(core.TaskStatusInProgress)
	o.events.publish(core.NewTaskEvent(core.EventTaskAssigned, task.Clone()))
	o.logTransition(task, core.TaskStatusPending, 0, nil)
	o.notifyLocked()

	o.wg.Add(1)
	go o.process(task.Clone(), a)

	return task.Clone(), nil
}

// GetTaskStatus returns a snapshot of the task.
func (o *Orchestrator) GetTaskStatus(taskID string) (core.Task, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	task, ok := o.tasks[taskID]
	if !ok {
		return core.Task{}, fmt.Errorf("task %s: %w", taskID, core.ErrNotFound)
	}
	return task.Clone(), nil
}

// Tasks returns snapshots of all tasks in creation order.
func (o *Orchestrator) Tasks() []core.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.filterTasksLocked(func(core.Task) bool { return true })
}

// TasksForWorkflow returns snapshots of the tasks spawned for a workflow in
// creation order.
func (o *Orchestrator) TasksForWorkflow(workflowID string) []core.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.filterTasksLocked(func(t core.Task) bool { return t.Context.WorkflowID == workflowID })
}

func (o *Orchestrator) filterTasksLocked(keep func(core.Task) bool) []core.Task {
	out := make([]core.Task, 0, len(o.taskOrder))
	for _, id := range o.taskOrder {
		if t := o.tasks[id]; keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// WaitForTask blocks until the task reaches a terminal status or ctx is done.
// On ctx expiry the latest snapshot is returned with the context error.
func (o *Orchestrator) WaitForTask(ctx context.Context, taskID string) (core.Task, error) {
	for {
		o.mu.RLock()
		task, ok := o.tasks[taskID]
		changed := o.changed
		o.mu.RUnlock()

		if !ok {
			return core.Task{}, fmt.Errorf("task %s: %w", taskID, core.ErrNotFound)
		}
		if task.Status.IsTerminal() {
			return task.Clone(), nil
		}

		select {
		case <-ctx.Done():
			return task.Clone(), ctx.Err()
		case <-changed:
		}
	}
}

// Wait blocks until no task is being processed.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels the context of in-flight processing and waits for it to
// drain or for ctx to expire. Later assignments return ErrClosed.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notifyLocked wakes every waiter. Callers hold o.mu for writing.
func (o *Orchestrator) notifyLocked() {
	close(o.changed)
	o.changed = make(chan struct{})
}

type transitionLogger interface {
	LogTaskTransition(taskID, taskType, from, to string, dur time.Duration, err error)
}

func (o *Orchestrator) logTransition(task core.Task, from core.TaskStatus, dur time.Duration, err error) {
	if tl, ok := o.logger.(transitionLogger); ok {
		tl.LogTaskTransition(task.ID, task.Type, string(from), string(task.Status), dur, err)
		return
	}
	args := []any{"task_id", task.ID, "type", task.Type, "from", string(from), "to", string(task.Status)}
	if dur > 0 {
		args = append(args, "duration", dur)
	}
	if err != nil {
		o.logger.Warn("task transition", append(args, "error", err.Error())...)
		return
	}
	o.logger.Info("task transition", args...)
}
