// Package redis provides a Redis-backed core.KnowledgeStore so several
// processes can share the knowledge agents accumulate.
//
// Layout (all keys carry the configured prefix):
//
//	entry:<id>  JSON encoded core.KnowledgeEntry
//	order       sorted set of ids scored by insertion sequence
//	seq         insertion sequence counter
//	tag:<tag>   set of ids carrying the tag
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/brigade/core"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "brigade:knowledge:"

const scanBatch = 100

// maxTxRetries bounds optimistic-lock retries of WATCH transactions.
const maxTxRetries = 1000

// ErrTxRetriesExhausted is returned when a WATCH transaction kept losing to
// concurrent writers.
var ErrTxRetriesExhausted = errors.New("knowledge transaction retries exhausted")

// Options configures a Store.
type Options struct {
	KeyPrefix string
	// Now overrides the clock used for entry timestamps.
	Now func() time.Time
}

// Config describes how to reach Redis when the store owns its client.
type Config struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// Store implements core.KnowledgeStore on Redis.
type Store struct {
	client redis.UniversalClient
	opts   Options
}

// New wraps an existing client.
func New(client redis.UniversalClient, optFns ...func(o *Options)) *Store {
	opts := Options{
		KeyPrefix: DefaultKeyPrefix,
		Now:       time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{client: client, opts: opts}
}

// NewFromConfig dials Redis and verifies the connection.
func NewFromConfig(cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, func(o *Options) {
		if cfg.KeyPrefix != "" {
			o.KeyPrefix = cfg.KeyPrefix
		}
	}), nil
}

// Close closes the underlying client.
func (s *Store) Close() error { return s.client.Close() }

// Ping checks if the store is healthy.
func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *Store) entryKey(id string) string { return s.opts.KeyPrefix + "entry:" + id }
func (s *Store) orderKey() string          { return s.opts.KeyPrefix + "order" }
func (s *Store) seqKey() string            { return s.opts.KeyPrefix + "seq" }
func (s *Store) tagKey(tag string) string  { return s.opts.KeyPrefix + "tag:" + tag }

// Store persists a new entry with a fresh id and timestamp.
func (s *Store) Store(ctx context.Context, entry core.KnowledgeEntry) (core.KnowledgeEntry, error) {
	e := entry.Clone()
	e.ID = core.NewID()
	e.Timestamp = s.opts.Now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		return core.KnowledgeEntry{}, fmt.Errorf("failed to marshal knowledge entry: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return core.KnowledgeEntry{}, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(e.ID), data, 0)
		pipe.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(seq), Member: e.ID})
		for _, tag := range e.Tags {
			pipe.SAdd(ctx, s.tagKey(tag), e.ID)
		}
		return nil
	})
	if err != nil {
		return core.KnowledgeEntry{}, fmt.Errorf("failed to store knowledge entry: %w", err)
	}
	return e, nil
}

// Retrieve performs a case-insensitive substring match over content or topic
// in insertion order.
func (s *Store) Retrieve(ctx context.Context, query string, limit int) ([]core.KnowledgeEntry, error) {
	q := strings.ToLower(query)
	return s.scan(ctx, limit, nil, func(e core.KnowledgeEntry) bool {
		return strings.Contains(strings.ToLower(e.Content), q) ||
			strings.Contains(strings.ToLower(e.Topic), q)
	})
}

// RetrieveByTags returns entries carrying at least one of tags in insertion order.
func (s *Store) RetrieveByTags(ctx context.Context, tags []string, limit int) ([]core.KnowledgeEntry, error) {
	if len(tags) == 0 {
		return []core.KnowledgeEntry{}, nil
	}
	keys := make([]string, len(tags))
	for i, t := range tags {
		keys[i] = s.tagKey(t)
	}
	ids, err := s.client.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tag index: %w", err)
	}
	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	return s.scan(ctx, limit, allowed, func(core.KnowledgeEntry) bool { return true })
}

// scan walks the order index in batches, optionally restricted to allowed ids.
func (s *Store) scan(
	ctx context.Context,
	limit int,
	allowed map[string]struct{},
	match func(core.KnowledgeEntry) bool,
) ([]core.KnowledgeEntry, error) {
	limit = core.NormalizeLimit(limit)
	results := make([]core.KnowledgeEntry, 0, limit)
	if allowed != nil && len(allowed) == 0 {
		return results, nil
	}

	for start := int64(0); ; start += scanBatch {
		ids, err := s.client.ZRange(ctx, s.orderKey(), start, start+scanBatch-1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read order index: %w", err)
		}
		if len(ids) == 0 {
			return results, nil
		}
		if allowed != nil {
			filtered := ids[:0]
			for _, id := range ids {
				if _, ok := allowed[id]; ok {
					filtered = append(filtered, id)
				}
			}
			ids = filtered
		}
		entries, err := s.load(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if match(e) {
				results = append(results, e)
				if len(results) >= limit {
					return results, nil
				}
			}
		}
	}
}

// load fetches entries for ids, skipping ids whose payload disappeared.
func (s *Store) load(ctx context.Context, ids []string) ([]core.KnowledgeEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge entries: %w", err)
	}
	out := make([]core.KnowledgeEntry, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var e core.KnowledgeEntry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			return nil, fmt.Errorf("failed to decode knowledge entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) get(ctx context.Context, c redis.Cmdable, id string) (core.KnowledgeEntry, error) {
	data, err := c.Get(ctx, s.entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.KnowledgeEntry{}, fmt.Errorf("knowledge entry %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.KnowledgeEntry{}, fmt.Errorf("failed to get knowledge entry: %w", err)
	}
	var e core.KnowledgeEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return core.KnowledgeEntry{}, fmt.Errorf("failed to decode knowledge entry: %w", err)
	}
	return e, nil
}

// Update merges patch over an existing entry, rewriting the tag index.
func (s *Store) Update(ctx context.Context, id string, patch core.KnowledgePatch) (core.KnowledgeEntry, error) {
	var updated core.KnowledgeEntry
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = patch.Apply(current)
		updated.ID = current.ID

		data, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to marshal knowledge entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.entryKey(id), data, 0)
			for _, tag := range current.Tags {
				pipe.SRem(ctx, s.tagKey(tag), id)
			}
			for _, tag := range updated.Tags {
				pipe.SAdd(ctx, s.tagKey(tag), id)
			}
			return nil
		})
		return err
	}, s.entryKey(id))
	if err != nil {
		return core.KnowledgeEntry{}, err
	}
	return updated, nil
}

// Delete removes an entry and its index memberships.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	removed := false
	err := s.watch(ctx, func(tx *redis.Tx) error {
		current, err := s.get(ctx, tx, id)
		if errors.Is(err, core.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.entryKey(id))
			pipe.ZRem(ctx, s.orderKey(), id)
			for _, tag := range current.Tags {
				pipe.SRem(ctx, s.tagKey(tag), id)
			}
			return nil
		})
		if err == nil {
			removed = true
		}
		return err
	}, s.entryKey(id))
	if err != nil {
		return false, fmt.Errorf("failed to delete knowledge entry: %w", err)
	}
	return removed, nil
}

// watch runs fn in a WATCH transaction on keys, retrying while a concurrent
// writer invalidates the watched keys.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := s.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ErrTxRetriesExhausted
}

// All returns every entry in insertion order.
func (s *Store) All(ctx context.Context) ([]core.KnowledgeEntry, error) {
	ids, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read order index: %w", err)
	}
	entries, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []core.KnowledgeEntry{}
	}
	return entries, nil
}
