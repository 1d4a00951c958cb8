// Package responsecache memoizes NPC dialogue by NPC, normalized question and evidence tier.
//
// Entries are shared across sessions: two players asking the same NPC the same question at the same tier get the
// same answer. Entries are never overwritten, only added or cleared by Reset.
package responsecache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/myrjola/compassmystery/internal/errors"
	"github.com/myrjola/compassmystery/internal/metrics"
	"github.com/myrjola/compassmystery/internal/models"
	"github.com/patrickmn/go-cache"
)

type Key struct {
	NPCID string
	// Question must already be normalized.
	Question string
	Tier     models.Tier
}

func (k Key) String() string {
	return k.NPCID + "\x1f" + string(k.Tier) + "\x1f" + k.Question
}

type Entry struct {
	Key      Key
	Response string
	Tone     string
	// Fallback marks a canned reply stored because generation failed.
	Fallback  bool
	CreatedAt time.Time
}

// Store persists entries so that answers stay stable across restarts.
type Store interface {
	// AddEntry inserts the entry unless one with the same key exists.
	AddEntry(ctx context.Context, e Entry) error
	ListEntries(ctx context.Context) ([]Entry, error)
	DeleteEntries(ctx context.Context) error
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Entries int     `json:"entries"`
}

type Cache struct {
	entries *cache.Cache
	hits    atomic.Int64
	misses  atomic.Int64
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Cache)

func WithStore(store Store) Option {
	return func(c *Cache) {
		c.store = store
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

func New(logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		entries: cache.New(cache.NoExpiration, 0),
		logger:  logger.With("source", "ResponseCache"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks up the entry and counts the hit or miss.
func (c *Cache) Get(ctx context.Context, key Key) (Entry, bool) {
	e, ok := c.Peek(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	c.metrics.RecordCacheLookup(ok)
	c.logger.LogAttrs(ctx, slog.LevelDebug, "cache lookup",
		slog.String("npc_id", key.NPCID),
		slog.String("tier", string(key.Tier)),
		slog.String("question", key.Question),
		slog.Bool("hit", ok))
	return e, ok
}

// Peek looks up the entry without counting it.
func (c *Cache) Peek(key Key) (Entry, bool) {
	v, ok := c.entries.Get(key.String())
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true //nolint:forcetypeassert // only Entry is stored
}

// Add inserts the entry unless the key is already cached and returns the entry that is cached afterwards, together
// with whether it was this one.
//
// The durable store is written after the in-memory insert succeeds. A failed write is logged and the entry stays
// cached in memory.
func (c *Cache) Add(ctx context.Context, e Entry) (Entry, bool) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = c.now()
	}
	if err := c.entries.Add(e.Key.String(), e, cache.NoExpiration); err != nil {
		if existing, ok := c.Peek(e.Key); ok {
			return existing, false
		}
		// Reset raced with us. Nothing cached, store ours.
		c.entries.SetDefault(e.Key.String(), e)
	}
	if c.store != nil {
		if err := c.store.AddEntry(ctx, e); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "persist cache entry", errors.SlogError(err))
		}
	}
	return e, true
}

// Warm loads persisted entries into memory. It doesn't touch the counters.
func (c *Cache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	entries, err := c.store.ListEntries(ctx)
	if err != nil {
		return errors.Wrap(err, "list cache entries")
	}
	for _, e := range entries {
		_ = c.entries.Add(e.Key.String(), e, cache.NoExpiration)
	}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "response cache warmed", slog.Int("entries", len(entries)))
	return nil
}

func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{
		Hits:    hits,
		Misses:  misses,
		HitRate: rate,
		Entries: c.entries.ItemCount(),
	}
}

// Entries returns all cached entries in no particular order.
func (c *Cache) Entries() []Entry {
	items := c.entries.Items()
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, item.Object.(Entry)) //nolint:forcetypeassert // only Entry is stored
	}
	return entries
}

// Reset clears all entries, the counters and the durable store.
func (c *Cache) Reset(ctx context.Context) error {
	c.entries.Flush()
	c.hits.Store(0)
	c.misses.Store(0)
	if c.store != nil {
		if err := c.store.DeleteEntries(ctx); err != nil {
			return errors.Wrap(err, "delete persisted cache entries")
		}
	}
	c.logger.LogAttrs(ctx, slog.LevelInfo, "response cache reset")
	return nil
}
