package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/listsync"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingStore struct {
	domain.PostingStore
	posting domain.Posting
	gets    atomic.Int32
}

func (s *countingStore) Get(ctx context.Context, id string) (*domain.Posting, error) {
	s.gets.Add(1)
	if id != s.posting.ID {
		return nil, domain.ErrPostingNotFound
	}
	p := s.posting
	return &p, nil
}

func (s *countingStore) Update(ctx context.Context, id string, fields domain.PostingFields) (*domain.Posting, error) {
	fields.Apply(&s.posting)
	p := s.posting
	return &p, nil
}

func (s *countingStore) Delete(ctx context.Context, id string) error {
	return nil
}

func TestMemory_SetGetExpire(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Options{DefaultTTL: time.Minute})
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	var got string
	require.NoError(t, m.Get(ctx, "k", &got))
	assert.Equal(t, "v", got)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, m.Get(ctx, "k", &got), ErrNotFound, "entry must expire after the default ttl")

	assert.ErrorIs(t, m.Set(ctx, "k", 42, 0), ErrInvalidValue)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Set(ctx, "k", "v", 0), ErrClosed)
}

func TestMemory_SetSweepsExpiredEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory(Options{DefaultTTL: time.Hour})
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := range 100 {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("session:%d", i), "v", 10*time.Second))
	}
	require.NoError(t, m.Set(ctx, "posting:a", "v", 0))
	require.Len(t, m.entries, 101)

	// Expired but within the sweep interval: nothing is scanned yet.
	now = now.Add(30 * time.Second)
	require.NoError(t, m.Set(ctx, "posting:b", "v", 0))
	assert.Len(t, m.entries, 102)

	now = now.Add(sweepInterval)
	require.NoError(t, m.Set(ctx, "posting:c", "v", 0))
	assert.Len(t, m.entries, 3, "expired keys that are never read again must not pile up")

	var got string
	assert.NoError(t, m.Get(ctx, "posting:a", &got))
}

func TestPostingStore_CachesGet(t *testing.T) {
	t.Parallel()

	inner := &countingStore{posting: domain.Posting{ID: "a", Role: "Designer"}}
	store := NewPostingStore(inner, NewMemory(DefaultOptions()), time.Minute, zap.NewNop())
	ctx := context.Background()

	first, err := store.Get(ctx, "a")
	require.NoError(t, err)
	second, err := store.Get(ctx, "a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.gets.Load(), "second read must be served from cache")
}

func TestPostingStore_NotFoundIsNotCached(t *testing.T) {
	t.Parallel()

	inner := &countingStore{posting: domain.Posting{ID: "a"}}
	store := NewPostingStore(inner, NewMemory(DefaultOptions()), time.Minute, zap.NewNop())

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPostingNotFound)
	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPostingNotFound)
	assert.EqualValues(t, 2, inner.gets.Load())
}

func TestPostingStore_WritesInvalidate(t *testing.T) {
	t.Parallel()

	inner := &countingStore{posting: domain.Posting{ID: "a", Role: "Designer"}}
	store := NewPostingStore(inner, NewMemory(DefaultOptions()), time.Minute, zap.NewNop())
	ctx := context.Background()

	_, err := store.Get(ctx, "a")
	require.NoError(t, err)

	_, err = store.Update(ctx, "a", domain.PostingFields{Role: "Lead Designer"})
	require.NoError(t, err)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Lead Designer", got.Role)
	assert.EqualValues(t, 2, inner.gets.Load())

	require.NoError(t, store.Delete(ctx, "a"))
	store.Invalidate(ctx, "a")
	_, _ = store.Get(ctx, "a")
	assert.EqualValues(t, 3, inner.gets.Load())
}

func TestPostingStore_FeedEventsEvictStaleRows(t *testing.T) {
	t.Parallel()

	inner := &countingStore{posting: domain.Posting{ID: "A", Role: "Go dev"}}
	store := NewPostingStore(inner, NewMemory(DefaultOptions()), time.Minute, zap.NewNop())
	ctx := context.Background()

	got, err := store.Get(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, "Go dev", got.Role)

	// Edited directly in the store, bypassing this wrapper.
	inner.posting.Role = "Senior Go dev"
	store.EvictChanged(domain.FeedEvent{Kind: domain.FeedUpdate, New: &domain.Posting{ID: "A"}})
	got, err = store.Get(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Senior Go dev", got.Role)

	inner.posting = domain.Posting{}
	store.EvictChanged(domain.FeedEvent{Kind: domain.FeedDelete, Old: &domain.Posting{ID: "A"}})
	_, err = store.Get(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrPostingNotFound)
}

func TestPostingStore_EngineFeedEvictsCachedRow(t *testing.T) {
	t.Parallel()

	scope := domain.FeedScope{Schema: "public", Table: "jobs"}
	inner := &countingStore{posting: domain.Posting{ID: "A", Role: "Go dev"}}
	store := NewPostingStore(inner, NewMemory(DefaultOptions()), time.Minute, zap.NewNop())
	engine := listsync.NewEngine(inner, nil, listsync.Options{Scope: scope, OnApplied: store.EvictChanged}, zap.NewNop())
	ctx := context.Background()

	_, err := store.Get(ctx, "A")
	require.NoError(t, err)

	inner.posting = domain.Posting{}
	engine.ApplyFeedEvent(domain.FeedEvent{Kind: domain.FeedDelete, Schema: "public", Table: "jobs", Old: &domain.Posting{ID: "A"}})

	_, err = store.Get(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrPostingNotFound, "detail reads must not outlive the delete")
}

func TestSessionStore(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(NewMemory(DefaultOptions()))
	ctx := context.Background()
	session := domain.Session{Token: "tok", Email: "admin@acme.io", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}

	require.NoError(t, store.Save(ctx, session))
	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, session.Email, got.Email)

	require.NoError(t, store.Delete(ctx, "tok"))
	_, err = store.Get(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	expired := domain.Session{Token: "old", ExpiresAt: time.Now().Add(-time.Second)}
	assert.ErrorIs(t, store.Save(ctx, expired), domain.ErrSessionExpired)
}
