// Package catalog owns the set of loaded posts.
//
// A load reads and builds every post source before anything is published:
// readers see either the previous complete set or the new complete set,
// never a partially built one.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/reblog/internal/apperr"
	"github.com/starford/reblog/internal/checksum"
	"github.com/starford/reblog/internal/models"
	"github.com/starford/reblog/internal/post"
	"github.com/starford/reblog/internal/storage"
)

type entry struct {
	post *models.Post
	meta models.PostMetadata
}

// Changes lists the post ids affected by a load.
type Changes struct {
	Created []string
	Updated []string
	Deleted []string
}

// Empty reports whether the load changed nothing.
func (c Changes) Empty() bool {
	return len(c.Created) == 0 && len(c.Updated) == 0 && len(c.Deleted) == 0
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithWorkers bounds the number of posts built concurrently.
func WithWorkers(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = l
	}
}

// Catalog is the ordered post collection handed to the HTTP, SSE and MCP
// layers. Load is the only writer.
type Catalog struct {
	store   storage.Provider
	builder *post.Builder
	logger  *slog.Logger
	workers int

	loadMu sync.Mutex

	mu      sync.RWMutex
	loaded  bool
	entries []entry
	byID    map[string]int
}

// New creates an empty catalog. Call Load to populate it.
func New(store storage.Provider, builder *post.Builder, opts ...Option) *Catalog {
	c := &Catalog{
		store:   store,
		builder: builder,
		logger:  slog.Default(),
		workers: runtime.GOMAXPROCS(0),
		byID:    map[string]int{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load lists the post sources, builds new or changed ones and publishes the
// result in listing order. Unchanged sources keep their existing post.
// If any post fails to build the catalog is left untouched.
func (c *Catalog) Load(ctx context.Context) (Changes, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	metas, err := c.store.List("")
	if err != nil {
		return Changes{}, fmt.Errorf("catalog: list: %w", err)
	}

	c.mu.RLock()
	prevEntries := c.entries
	prev := make(map[string]entry, len(prevEntries))
	for _, e := range prevEntries {
		prev[e.meta.Path] = e
	}
	c.mu.RUnlock()

	next := make([]entry, len(metas))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, m := range metas {
		if old, ok := prev[m.Path]; ok && old.meta.Checksum == m.Checksum {
			next[i] = entry{post: old.post, meta: m}
			continue
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			data, err := c.store.Read(m.Path)
			if err != nil {
				return err
			}
			p, err := c.builder.Build(m.Path, string(data))
			if err != nil {
				return err
			}
			m.Checksum = checksum.Sum(data)
			next[i] = entry{post: p, meta: m}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Changes{}, fmt.Errorf("catalog: load: %w", err)
	}

	changes := diff(prevEntries, next)
	byID := make(map[string]int, len(next))
	for i, e := range next {
		if first, dup := byID[e.post.ID]; dup {
			c.logger.Warn("catalog: duplicate post id",
				slog.String("id", e.post.ID),
				slog.String("path", e.meta.Path),
				slog.String("kept", next[first].meta.Path))
			continue
		}
		byID[e.post.ID] = i
	}

	c.mu.Lock()
	c.entries = next
	c.byID = byID
	c.loaded = true
	c.mu.Unlock()

	c.logger.Info("catalog: loaded",
		slog.Int("posts", len(next)),
		slog.Int("created", len(changes.Created)),
		slog.Int("updated", len(changes.Updated)),
		slog.Int("deleted", len(changes.Deleted)))
	return changes, nil
}

// diff compares two loads by post id. An id only in next is created, an id
// only in prev is deleted, and an id in both is updated when its source
// content or path changed. Duplicate ids resolve to the first entry, as in
// Get.
func diff(prev, next []entry) Changes {
	var ch Changes
	before := firstByID(prev)
	after := firstByID(next)
	for _, e := range next {
		if after[e.post.ID].post != e.post {
			continue
		}
		old, ok := before[e.post.ID]
		switch {
		case !ok:
			ch.Created = append(ch.Created, e.post.ID)
		case old.meta.Checksum != e.meta.Checksum || old.meta.Path != e.meta.Path:
			ch.Updated = append(ch.Updated, e.post.ID)
		}
	}
	for _, e := range prev {
		if before[e.post.ID].post != e.post {
			continue
		}
		if _, ok := after[e.post.ID]; !ok {
			ch.Deleted = append(ch.Deleted, e.post.ID)
		}
	}
	return ch
}

func firstByID(entries []entry) map[string]entry {
	m := make(map[string]entry, len(entries))
	for _, e := range entries {
		if _, dup := m[e.post.ID]; !dup {
			m[e.post.ID] = e
		}
	}
	return m
}

// Loaded reports whether a load has completed.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Len returns the number of posts.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// All returns every post in listing order.
func (c *Catalog) All() []*models.Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Post, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.post
	}
	return out
}

// Get returns the post with the given id.
func (c *Catalog) Get(id string) (*models.Post, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("catalog: post %q: %w", id, apperr.ErrNotFound)
	}
	return c.entries[i].post, nil
}

// Stat returns the source metadata of the post with the given id.
func (c *Catalog) Stat(id string) (models.PostMetadata, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[id]
	if !ok {
		return models.PostMetadata{}, fmt.Errorf("catalog: post %q: %w", id, apperr.ErrNotFound)
	}
	return c.entries[i].meta, nil
}

// Summaries returns list projections, optionally restricted to posts
// carrying tag. An empty tag matches every post.
func (c *Catalog) Summaries(tag string) []models.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Summary, 0, len(c.entries))
	for _, e := range c.entries {
		if tag != "" && !e.post.HasTag(tag) {
			continue
		}
		out = append(out, e.post.Summary())
	}
	return out
}

// Manifest returns the source paths of all posts, the listing the UI
// fetches as posts/index.json.
func (c *Catalog) Manifest() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.meta.Path
	}
	return out
}
