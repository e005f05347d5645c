package agent

import (
	"context"
	"errors"

	"github.com/hupe1980/brigade/core"
	"github.com/hupe1980/brigade/logging"
	"github.com/hupe1980/brigade/memory"
)

// TaskExtractMemories is the task type handled by MemoryAgent.
const TaskExtractMemories = "extract_memories"

// RoleMemoryKeeper is the role of MemoryAgent.
const RoleMemoryKeeper = "memory-keeper"

// TagMemory marks knowledge written by MemoryAgent.
const TagMemory = "memory"

// MemoryAgent extracts memories from a conversation and keeps them in the
// knowledge store.
type MemoryAgent struct {
	BaseAgent
	extractor *memory.Extractor
}

// NewMemoryAgent creates a memory keeper using extractor.
func NewMemoryAgent(name string, extractor *memory.Extractor) *MemoryAgent {
	a := &MemoryAgent{
		BaseAgent: NewBaseAgent(name, RoleMemoryKeeper, TaskExtractMemories),
		extractor: extractor,
	}
	a.SetDescription("Extracts durable memories from conversations")
	return a
}

// Process implements core.Agent. The result is the list of stored entries.
func (a *MemoryAgent) Process(ctx context.Context, task core.Task) (core.Task, error) {
	conversation := task.Context.GetString("conversation")
	if conversation == "" {
		return task, errors.New("no conversation provided")
	}

	mems, err := a.extractor.Extract(ctx, conversation)
	if err != nil {
		return task, err
	}

	stored := make([]core.KnowledgeEntry, 0, len(mems))
	for _, m := range mems {
		e, err := a.StoreKnowledge(ctx, core.KnowledgeEntry{
			Topic:   m.Category,
			Content: m.Content,
			Tags:    []string{TagMemory, m.Category},
		})
		if err != nil {
			return task, err
		}
		stored = append(stored, e)
	}

	a.Log(logging.LogLevelInfo, "memories stored", "task_id", task.ID, "count", len(stored))
	return a.Complete(task, stored), nil
}
