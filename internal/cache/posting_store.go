package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"jobboard/internal/domain"

	"go.uber.org/zap"
)

const postingKeyPrefix = "jobboard:posting:"

const evictTimeout = 2 * time.Second

type cachedPosting struct {
	domain.Posting
}

func (c *cachedPosting) MarshalBinary() ([]byte, error) {
	return json.Marshal(c.Posting)
}

func (c *cachedPosting) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, &c.Posting)
}

// PostingStore caches point reads of an underlying store. Writes go
// straight through and drop the cached entry. Cache failures are logged
// and never fail the call.
type PostingStore struct {
	domain.PostingStore
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewPostingStore wraps store with read-through caching of Get.
func NewPostingStore(store domain.PostingStore, c Cache, ttl time.Duration, logger *zap.Logger) *PostingStore {
	return &PostingStore{
		PostingStore: store,
		cache:        c,
		ttl:          ttl,
		logger:       logger.With(zap.String("component", "posting-cache")),
	}
}

func postingKey(id string) string {
	return postingKeyPrefix + id
}

func (s *PostingStore) Get(ctx context.Context, id string) (*domain.Posting, error) {
	var cached cachedPosting
	err := s.cache.Get(ctx, postingKey(id), &cached)
	if err == nil {
		return &cached.Posting, nil
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("posting cache read failed", zap.String("id", id), zap.Error(err))
	}

	p, err := s.PostingStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, postingKey(id), &cachedPosting{Posting: *p}, s.ttl); err != nil {
		s.logger.Warn("posting cache write failed", zap.String("id", id), zap.Error(err))
	}
	return p, nil
}

func (s *PostingStore) Update(ctx context.Context, id string, fields domain.PostingFields) (*domain.Posting, error) {
	p, err := s.PostingStore.Update(ctx, id, fields)
	s.invalidate(ctx, id)
	return p, err
}

func (s *PostingStore) Delete(ctx context.Context, id string) error {
	err := s.PostingStore.Delete(ctx, id)
	s.invalidate(ctx, id)
	return err
}

// Invalidate drops a cached posting.
func (s *PostingStore) Invalidate(ctx context.Context, id string) {
	s.invalidate(ctx, id)
}

// EvictChanged drops the cached copy of the posting an update or delete
// event refers to, so writes made through other instances or directly in
// the store are not served stale. Inserts have nothing cached.
func (s *PostingStore) EvictChanged(ev domain.FeedEvent) {
	if ev.Kind == domain.FeedInsert {
		return
	}
	id := ev.PostingID()
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
	defer cancel()
	s.invalidate(ctx, id)
}

func (s *PostingStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, postingKey(id)); err != nil {
		s.logger.Warn("posting cache invalidation failed", zap.String("id", id), zap.Error(err))
	}
}
