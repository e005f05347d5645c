package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/logging"
)

// BaseAgent bundles identity, the default capability check and knowledge
// store helpers. Embed it in concrete agent implementations and supply a
// Process method to satisfy the core.Agent interface. All exported methods are
// goroutine-safe.
type BaseAgent struct {
	id           string   // Unique identifier, generated once
	name         string   // Human-readable name
	role         string   // Role used by workflow steps to target this agent
	description  string   // Detailed description of agent's purpose
	capabilities []string // Task types this agent can process

	mu     *sync.RWMutex       // Protects store and logger
	store  core.KnowledgeStore // Optional shared knowledge store
	logger logging.Logger
}

// NewBaseAgent constructs a BaseAgent with a fresh id and generated description
// (customizable via SetDescription).
func NewBaseAgent(name, role string, capabilities ...string) BaseAgent {
	return BaseAgent{
		id:           core.NewID(),
		name:         name,
		role:         role,
		description:  fmt.Sprintf("Agent %s", name),
		capabilities: slices.Clone(capabilities),
		mu:           &sync.RWMutex{},
		logger:       logging.NoOpLogger{},
	}
}

// ID returns the agent's unique identifier.
func (b *BaseAgent) ID() string { return b.id }

// Name returns the human-readable name for this agent.
func (b *BaseAgent) Name() string { return b.name }

// Role returns the role workflow steps use to target this agent.
func (b *BaseAgent) Role() string { return b.role }

// Capabilities returns a copy of the task types this agent can process.
func (b *BaseAgent) Capabilities() []string { return slices.Clone(b.capabilities) }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string { return b.description }

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) { b.description = desc }

// CanProcess reports whether the task type is one of the agent's capabilities.
func (b *BaseAgent) CanProcess(task core.Task) bool {
	return slices.Contains(b.capabilities, task.Type)
}

// SetKnowledgeStore attaches the shared knowledge store.
func (b *BaseAgent) SetKnowledgeStore(store core.KnowledgeStore) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
}

// KnowledgeStore returns the attached store or nil.
func (b *BaseAgent) KnowledgeStore() core.KnowledgeStore {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store
}

func (b *BaseAgent) requireStore() (core.KnowledgeStore, error) {
	store := b.KnowledgeStore()
	if store == nil {
		return nil, fmt.Errorf("agent %s: %w", b.id, core.ErrNotInitialized)
	}
	return store, nil
}

// RetrieveKnowledge queries the attached store with the default limit.
func (b *BaseAgent) RetrieveKnowledge(ctx context.Context, query string) ([]core.KnowledgeEntry, error) {
	store, err := b.requireStore()
	if err != nil {
		return nil, err
	}
	return store.Retrieve(ctx, query, core.DefaultRetrieveLimit)
}

// RetrieveKnowledgeByTags queries the attached store by tag intersection.
func (b *BaseAgent) RetrieveKnowledgeByTags(ctx context.Context, tags ...string) ([]core.KnowledgeEntry, error) {
	store, err := b.requireStore()
	if err != nil {
		return nil, err
	}
	return store.RetrieveByTags(ctx, tags, core.DefaultRetrieveLimit)
}

// StoreKnowledge persists entry with Source set to "<role>:<id>".
func (b *BaseAgent) StoreKnowledge(ctx context.Context, entry core.KnowledgeEntry) (core.KnowledgeEntry, error) {
	store, err := b.requireStore()
	if err != nil {
		return core.KnowledgeEntry{}, err
	}
	entry.Source = b.role + ":" + b.id
	return store.Store(ctx, entry)
}

// SetLogger replaces the agent logger. A nil logger disables logging.
func (b *BaseAgent) SetLogger(l logging.Logger) {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = l
}

// Logger returns the agent logger.
func (b *BaseAgent) Logger() logging.Logger {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.logger
}

// Log writes msg at level, tagged with the agent's identity.
func (b *BaseAgent) Log(level logging.LogLevel, msg string, args ...any) {
	args = append([]any{"agent_id", b.id, "role", b.role}, args...)
	l := b.Logger()
	switch level {
	case logging.LogLevelDebug:
		l.Debug(msg, args...)
	case logging.LogLevelWarn:
		l.Warn(msg, args...)
	case logging.LogLevelError:
		l.Error(msg, args...)
	default:
		l.Info(msg, args...)
	}
}

// Complete returns task marked completed with result.
func (b *BaseAgent) Complete(task core.Task, result any) core.Task {
	task.Status = core.TaskStatusCompleted
	task.Result = result
	task.Error = ""
	task.UpdatedAt = time.Now()
	return task
}

// Fail returns task marked failed with the conventional error result.
func (b *BaseAgent) Fail(task core.Task, err error) core.Task {
	task.Status = core.TaskStatusFailed
	task.Result = core.FailureResult(err.Error())
	task.Error = err.Error()
	task.UpdatedAt = time.Now()
	return task
}
