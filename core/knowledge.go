package core

import (
	"context"
	"slices"
	"time"
)

// DefaultRetrieveLimit bounds Retrieve / RetrieveByTags when the caller passes
// a non-positive limit.
const DefaultRetrieveLimit = 10

// KnowledgeEntry is a tagged, timestamped free-text record shared by agents.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
}

// Clone returns a copy whose Tags slice is not shared.
func (e KnowledgeEntry) Clone() KnowledgeEntry {
	ne := e
	ne.Tags = slices.Clone(e.Tags)
	return ne
}

// HasAnyTag reports whether the entry's tag set intersects tags.
func (e KnowledgeEntry) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(e.Tags, t) {
			return true
		}
	}
	return false
}

// KnowledgePatch is a partial update. Nil fields are left untouched; the
// entry ID can never be patched.
type KnowledgePatch struct {
	Topic     *string
	Content   *string
	Source    *string
	Timestamp *time.Time
	Tags      []string
	// SetTags distinguishes "replace tags with an empty set" from "leave tags".
	SetTags bool
}

// Apply merges the patch over e and returns the result.
func (p KnowledgePatch) Apply(e KnowledgeEntry) KnowledgeEntry {
	ne := e.Clone()
	if p.Topic != nil {
		ne.Topic = *p.Topic
	}
	if p.Content != nil {
		ne.Content = *p.Content
	}
	if p.Source != nil {
		ne.Source = *p.Source
	}
	if p.Timestamp != nil {
		ne.Timestamp = *p.Timestamp
	}
	if p.SetTags || p.Tags != nil {
		ne.Tags = slices.Clone(p.Tags)
	}
	return ne
}

// KnowledgeStore defines storage and retrieval of knowledge entries. Retrieval
// is by case-insensitive substring over content or topic, or by tag
// intersection; both preserve insertion order and are bounded by limit.
type KnowledgeStore interface {
	// Store assigns a fresh ID and the current timestamp. Duplicates are allowed.
	Store(ctx context.Context, entry KnowledgeEntry) (KnowledgeEntry, error)
	Retrieve(ctx context.Context, query string, limit int) ([]KnowledgeEntry, error)
	RetrieveByTags(ctx context.Context, tags []string, limit int) ([]KnowledgeEntry, error)
	// Update returns ErrNotFound when id is absent.
	Update(ctx context.Context, id string, patch KnowledgePatch) (KnowledgeEntry, error)
	// Delete reports whether an entry was removed.
	Delete(ctx context.Context, id string) (bool, error)
	// All dumps every entry; intended for diagnostics.
	All(ctx context.Context) ([]KnowledgeEntry, error)
}

// NormalizeLimit maps non-positive limits to DefaultRetrieveLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultRetrieveLimit
	}
	return limit
}
