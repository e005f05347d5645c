package testutil

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/brigade/core"
)

// StubAgent is a configurable core.Agent for tests. By default it completes
// every task with the result "<role>:<task type>".
type StubAgent struct {
	id           string
	name         string
	role         string
	capabilities []string

	mu      sync.Mutex
	err     error
	panicV  any
	gate    chan struct{}
	result  func(core.Task) any
	seen    []core.Task
	running atomic.Int32
	maxSeen atomic.Int32
}

// NewStubAgent creates a stub with a fresh id.
func NewStubAgent(role string, capabilities ...string) *StubAgent {
	return &StubAgent{
		id:           core.NewID(),
		name:         role,
		role:         role,
		capabilities: capabilities,
	}
}

// WithID overrides the generated id (chainable).
func (a *StubAgent) WithID(id string) *StubAgent { a.id = id; return a }

// FailWith makes Process return err (chainable).
func (a *StubAgent) FailWith(err error) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	return a
}

// PanicWith makes Process panic with v (chainable).
func (a *StubAgent) PanicWith(v any) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.panicV = v
	return a
}

// Gate makes Process block until the returned function is called (or the
// context is done).
func (a *StubAgent) Gate() (release func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan struct{})
	a.gate = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// ResultFunc overrides the result computation (chainable).
func (a *StubAgent) ResultFunc(fn func(core.Task) any) *StubAgent {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.result = fn
	return a
}

func (a *StubAgent) ID() string             { return a.id }
func (a *StubAgent) Name() string           { return a.name }
func (a *StubAgent) Role() string           { return a.role }
func (a *StubAgent) Capabilities() []string { return slices.Clone(a.capabilities) }

// CanProcess reports whether the task type is a capability.
func (a *StubAgent) CanProcess(task core.Task) bool { return slices.Contains(a.capabilities, task.Type) }

// Process implements core.Agent.
func (a *StubAgent) Process(ctx context.Context, task core.Task) (core.Task, error) {
	n := a.running.Add(1)
	defer a.running.Add(-1)
	for {
		m := a.maxSeen.Load()
		if n <= m || a.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	a.mu.Lock()
	a.seen = append(a.seen, task.Clone())
	err, panicV, gate, result := a.err, a.panicV, a.gate, a.result
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return task, ctx.Err()
		}
	}
	if panicV != nil {
		panic(panicV)
	}
	if err != nil {
		return task, err
	}

	task.Status = core.TaskStatusCompleted
	if result != nil {
		task.Result = result(task)
	} else {
		task.Result = a.role + ":" + task.Type
	}
	return task, nil
}

// Seen returns the tasks passed to Process so far.
func (a *StubAgent) Seen() []core.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.seen)
}

// MaxConcurrent returns the highest number of concurrent Process calls observed.
func (a *StubAgent) MaxConcurrent() int { return int(a.maxSeen.Load()) }
