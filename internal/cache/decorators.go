package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ahrav/go-recall/internal/domain"
)

// Searcher is the context search contract being cached.
type Searcher interface {
	Search(ctx context.Context, question string) ([]domain.ContextSnippet, error)
}

// Answerer is the generation contract being cached.
type Answerer interface {
	Answer(ctx context.Context, question string, snippets []domain.ContextSnippet) (string, error)
}

// Stats counts cache outcomes.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// counters is shared by both decorators of one Cache.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

// Cache builds decorators that share a store, key namespace and TTL.
type Cache struct {
	store  Store
	prefix string
	ttl    time.Duration
	logger *slog.Logger
	stats  counters
}

// New creates a Cache. prefix namespaces every key.
func New(store Store, prefix string, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, prefix: prefix, ttl: ttl, logger: logger.With("component", "cache")}
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.stats.hits.Load(),
		Misses: c.stats.misses.Load(),
		Errors: c.stats.errors.Load(),
	}
}

// Searcher wraps next so successful searches are served from the store.
func (c *Cache) Searcher(next Searcher) Searcher { return &cachedSearcher{cache: c, next: next} }

// Answerer wraps next so non-empty answers are served from the store.
// identity distinguishes providers and models sharing one store.
func (c *Cache) Answerer(next Answerer, identity string) Answerer {
	return &cachedAnswerer{cache: c, next: next, identity: identity}
}

// key hashes parts into a fixed-length key under the cache prefix.
func (c *Cache) key(kind string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return c.prefix + kind + ":" + hex.EncodeToString(h.Sum(nil))
}

// lookup reads key into dst. Store and decode errors count as misses.
func (c *Cache) lookup(ctx context.Context, key string, dst any) bool {
	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		c.stats.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("cache entry undecodable", "key", key, "error", err)
		return false
	}
	c.stats.hits.Add(1)
	c.logger.Debug("cache hit", "key", key)
	return true
}

// save writes v under key; failures are logged and dropped.
func (c *Cache) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = c.store.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

type cachedSearcher struct {
	cache *Cache
	next  Searcher
}

func (s *cachedSearcher) Search(ctx context.Context, question string) ([]domain.ContextSnippet, error) {
	key := s.cache.key("search", question)

	var cached []domain.ContextSnippet
	if s.cache.lookup(ctx, key, &cached) {
		if cached == nil {
			cached = []domain.ContextSnippet{}
		}
		return cached, nil
	}

	snippets, err := s.next.Search(ctx, question)
	if err != nil {
		return nil, err
	}
	s.cache.save(ctx, key, snippets)
	return snippets, nil
}

type cachedAnswerer struct {
	cache    *Cache
	next     Answerer
	identity string
}

func (a *cachedAnswerer) Answer(ctx context.Context, question string, snippets []domain.ContextSnippet) (string, error) {
	parts := make([]string, 0, len(snippets)+2)
	parts = append(parts, a.identity, question)
	for _, s := range snippets {
		parts = append(parts, s.Content)
	}
	key := a.cache.key("answer", parts...)

	var cached string
	if a.cache.lookup(ctx, key, &cached) && cached != "" {
		return cached, nil
	}

	answer, err := a.next.Answer(ctx, question, snippets)
	if err != nil {
		return "", err
	}
	if answer != "" {
		a.cache.save(ctx, key, answer)
	}
	return answer, nil
}
