package redis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brigade/core"
)

var _ core.KnowledgeStore = (*Store)(nil)

func setupTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := New(client, func(o *Options) { o.KeyPrefix = "test:" })

	t.Cleanup(func() {
		_ = store.Close()
		mr.Close()
	})
	return mr, store
}

func TestStore_RoundTrip(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	stored, err := s.Store(ctx, core.KnowledgeEntry{Topic: "pricing", Content: "Raise lunch prices", Source: "strategist:1", Tags: []string{"strategy"}})
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	got, err := s.Retrieve(ctx, "LUNCH", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stored.ID, got[0].ID)
	assert.Equal(t, "Raise lunch prices", got[0].Content)
	assert.True(t, stored.Timestamp.Equal(got[0].Timestamp))

	content := "new content"
	updated, err := s.Update(ctx, stored.ID, core.KnowledgePatch{Content: &content})
	require.NoError(t, err)
	assert.True(t, stored.Timestamp.Equal(updated.Timestamp))

	got, err = s.Retrieve(ctx, "new content", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stored.ID, got[0].ID)
}

func TestStore_InsertionOrderAndLimit(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := s.Store(ctx, core.KnowledgeEntry{Topic: "t", Content: fmt.Sprintf("entry %02d", i)})
		require.NoError(t, err)
	}

	got, err := s.Retrieve(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, core.DefaultRetrieveLimit)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("entry %02d", i), e.Content)
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 12)
}

func TestStore_RetrieveByTags(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	a, _ := s.Store(ctx, core.KnowledgeEntry{Content: "a", Tags: []string{"dairy"}})
	_, _ = s.Store(ctx, core.KnowledgeEntry{Content: "b", Tags: []string{"strategy"}})
	c, _ := s.Store(ctx, core.KnowledgeEntry{Content: "c", Tags: []string{"dairy", "egg"}})

	got, err := s.RetrieveByTags(ctx, []string{"egg", "dairy"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)
	assert.Equal(t, c.ID, got[1].ID)

	none, err := s.RetrieveByTags(ctx, []string{"nothing"}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_UpdateRewritesTags(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	e, _ := s.Store(ctx, core.KnowledgeEntry{Content: "x", Tags: []string{"old"}})

	ts := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := s.Update(ctx, e.ID, core.KnowledgePatch{Tags: []string{"new"}, Timestamp: &ts})
	require.NoError(t, err)

	old, _ := s.RetrieveByTags(ctx, []string{"old"}, 10)
	assert.Empty(t, old)
	fresh, _ := s.RetrieveByTags(ctx, []string{"new"}, 10)
	require.Len(t, fresh, 1)
	assert.True(t, ts.Equal(fresh[0].Timestamp))

	_, err = s.Update(ctx, "missing", core.KnowledgePatch{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()
	e, _ := s.Store(ctx, core.KnowledgeEntry{Content: "x", Tags: []string{"t"}})

	removed, err := s.Delete(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	all, _ := s.All(ctx)
	assert.Empty(t, all)
	tagged, _ := s.RetrieveByTags(ctx, []string{"t"}, 10)
	assert.Empty(t, tagged)
}

func TestNewFromConfig(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	s, err := NewFromConfig(Config{Addr: mr.Addr(), KeyPrefix: "cfg:"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Ping(context.Background()))
	_, err = s.Store(context.Background(), core.KnowledgeEntry{Content: "x"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("cfg:order"))

	mr.Close()
	_, err = NewFromConfig(Config{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	stored, err := s.Store(ctx, core.KnowledgeEntry{Topic: "pricing", Content: "v0", Tags: []string{"strategy"}})
	require.NoError(t, err)

	const writers = 50
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			content := fmt.Sprintf("v%d", i+1)
			tags := []string{fmt.Sprintf("t%d", i%3)}
			_, err := s.Update(ctx, stored.ID, core.KnowledgePatch{Content: &content, Tags: tags, SetTags: true})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Len(t, all[0].Tags, 1)

	for _, tag := range []string{"t0", "t1", "t2", "strategy"} {
		tagged, err := s.RetrieveByTags(ctx, []string{tag}, 10)
		require.NoError(t, err)
		if tag == all[0].Tags[0] {
			assert.Len(t, tagged, 1, tag)
		} else {
			assert.Empty(t, tagged, tag)
		}
	}
}

func TestStore_ConcurrentDeletes(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	stored, err := s.Store(ctx, core.KnowledgeEntry{Topic: "pricing", Content: "gone soon", Tags: []string{"strategy"}})
	require.NoError(t, err)

	var removed atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Delete(ctx, stored.ID)
			assert.NoError(t, err)
			if ok {
				removed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), removed.Load())
	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
