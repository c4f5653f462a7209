package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-recall/internal/cache"
	"github.com/ahrav/go-recall/internal/domain"
)

// memoryStore is an in-process Store.
type memoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
	failSet bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return nil, false, errors.New("store down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet {
		return errors.New("store down")
	}
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

type countingSearcher struct {
	calls int
	resp  []domain.ContextSnippet
	err   error
}

func (s *countingSearcher) Search(context.Context, string) ([]domain.ContextSnippet, error) {
	s.calls++
	return s.resp, s.err
}

type countingAnswerer struct {
	calls int
	resp  string
	err   error
}

func (a *countingAnswerer) Answer(context.Context, string, []domain.ContextSnippet) (string, error) {
	a.calls++
	return a.resp, a.err
}

func TestCachedSearcherServesRepeatFromStore(t *testing.T) {
	store := newMemoryStore()
	c := cache.New(store, "test:", time.Hour, nil)

	var snippet domain.ContextSnippet
	require.NoError(t, snippet.UnmarshalJSON([]byte(`{"content":"alpha","source":"doc-1"}`)))
	next := &countingSearcher{resp: []domain.ContextSnippet{snippet}}
	s := c.Searcher(next)

	first, err := s.Search(context.Background(), "A?")
	require.NoError(t, err)
	second, err := s.Search(context.Background(), "A?")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Content, second[0].Content)
	assert.JSONEq(t, `{"content":"alpha","source":"doc-1"}`, string(second[0].Raw))
	assert.Equal(t, cache.Stats{Hits: 1, Misses: 1}, c.Stats())

	for k, ttl := range store.ttls {
		assert.Contains(t, k, "test:search:")
		assert.Equal(t, time.Hour, ttl)
	}
}

func TestCachedSearcherCachesEmptyResult(t *testing.T) {
	c := cache.New(newMemoryStore(), "", time.Hour, nil)
	next := &countingSearcher{resp: []domain.ContextSnippet{}}
	s := c.Searcher(next)

	_, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	got, err := s.Search(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCachedSearcherDoesNotCacheFailures(t *testing.T) {
	c := cache.New(newMemoryStore(), "", time.Hour, nil)
	boom := errors.New("boom")
	next := &countingSearcher{err: boom}
	s := c.Searcher(next)

	_, err := s.Search(context.Background(), "q")
	require.ErrorIs(t, err, boom)
	_, err = s.Search(context.Background(), "q")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 2, next.calls)
}

func TestCachedAnswererSkipsEmptyAnswers(t *testing.T) {
	c := cache.New(newMemoryStore(), "", time.Hour, nil)
	next := &countingAnswerer{resp: ""}
	a := c.Answerer(next, "openai/gpt")

	for range 2 {
		got, err := a.Answer(context.Background(), "q", nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, 2, next.calls)
}

func TestCachedAnswererKeyIncludesContextAndIdentity(t *testing.T) {
	store := newMemoryStore()
	c := cache.New(store, "", time.Hour, nil)
	next := &countingAnswerer{resp: "Paris"}
	ctxA := []domain.ContextSnippet{{Content: "France"}}
	ctxB := []domain.ContextSnippet{{Content: "Germany"}}

	a := c.Answerer(next, "openai/gpt")
	_, _ = a.Answer(context.Background(), "Capital?", ctxA)
	_, _ = a.Answer(context.Background(), "Capital?", ctxA)
	assert.Equal(t, 1, next.calls)

	_, _ = a.Answer(context.Background(), "Capital?", ctxB)
	assert.Equal(t, 2, next.calls)

	other := c.Answerer(next, "anthropic/claude")
	_, _ = other.Answer(context.Background(), "Capital?", ctxA)
	assert.Equal(t, 3, next.calls)
}

func TestCacheDegradesWhenStoreFails(t *testing.T) {
	store := newMemoryStore()
	store.failGet = true
	store.failSet = true
	c := cache.New(store, "", time.Hour, nil)
	next := &countingAnswerer{resp: "ok"}
	a := c.Answerer(next, "x")

	got, err := a.Answer(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int64(2), c.Stats().Errors)
}
