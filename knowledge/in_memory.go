package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/brigade/core"
)

// InMemoryStore is a process-local KnowledgeStore.
//
// Concurrency: protected by RWMutex; every mutation is atomic per entry.
// Retrieval: linear scan in insertion order. Suitable for demos and tests;
// use knowledge/redis when several processes share a store.
type InMemoryStore struct {
	mu      sync.RWMutex
	order   []string                       // insertion order of live ids
	entries map[string]core.KnowledgeEntry // id -> entry
	now     func() time.Time
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]core.KnowledgeEntry),
		now:     time.Now,
	}
}

// Store appends a new entry with a fresh id and the current timestamp.
func (s *InMemoryStore) Store(_ context.Context, entry core.KnowledgeEntry) (core.KnowledgeEntry, error) {
	e := entry.Clone()
	e.ID = core.NewID()
	e.Timestamp = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	return e.Clone(), nil
}

// Retrieve performs a case-insensitive substring match over content or topic.
// An empty query matches every entry.
func (s *InMemoryStore) Retrieve(_ context.Context, query string, limit int) ([]core.KnowledgeEntry, error) {
	q := strings.ToLower(query)
	return s.scan(limit, func(e core.KnowledgeEntry) bool {
		return strings.Contains(strings.ToLower(e.Content), q) ||
			strings.Contains(strings.ToLower(e.Topic), q)
	}), nil
}

// RetrieveByTags returns entries carrying at least one of tags.
func (s *InMemoryStore) RetrieveByTags(_ context.Context, tags []string, limit int) ([]core.KnowledgeEntry, error) {
	return s.scan(limit, func(e core.KnowledgeEntry) bool {
		return e.HasAnyTag(tags)
	}), nil
}

func (s *InMemoryStore) scan(limit int, match func(core.KnowledgeEntry) bool) []core.KnowledgeEntry {
	limit = core.NormalizeLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]core.KnowledgeEntry, 0, min(limit, len(s.order)))
	for _, id := range s.order {
		if len(results) >= limit {
			break
		}
		if e := s.entries[id]; match(e) {
			results = append(results, e.Clone())
		}
	}
	return results
}

// Update merges patch over an existing entry. The id is never overwritten and
// the timestamp is kept unless the patch sets one.
func (s *InMemoryStore) Update(_ context.Context, id string, patch core.KnowledgePatch) (core.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return core.KnowledgeEntry{}, fmt.Errorf("knowledge entry %s: %w", id, core.ErrNotFound)
	}
	updated := patch.Apply(e)
	updated.ID = e.ID
	s.entries[id] = updated
	return updated.Clone(), nil
}

// Delete removes an entry, reporting whether it existed.
func (s *InMemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false, nil
	}
	delete(s.entries, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// All returns a copy of every entry in insertion order.
func (s *InMemoryStore) All(_ context.Context) ([]core.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.KnowledgeEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].Clone())
	}
	return out, nil
}
