// internal/infra/etcd/etcd_change_feed.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"jobboard/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// WatchFeed turns etcd watch events on the postings prefix into row
// change events tagged with the store's schema and table.
type WatchFeed struct {
	client *clientv3.Client
	dir    string
	scope  domain.FeedScope
	logger *zap.Logger
}

// NewWatchFeed creates a change feed over the postings written by the etcd
// posting store under prefix.
func NewWatchFeed(client *clientv3.Client, prefix string, scope domain.FeedScope, logger *zap.Logger) *WatchFeed {
	return &WatchFeed{
		client: client,
		dir:    postingsDir(prefix),
		scope:  scope,
		logger: logger.With(zap.String("component", "etcd-change-feed")),
	}
}

type watchSubscription struct {
	events chan domain.FeedEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *watchSubscription) Events() <-chan domain.FeedEvent {
	return s.events
}

func (s *watchSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Subscribe starts watching from the current revision. ctx only bounds
// setup; the watch lives until Close.
func (f *WatchFeed) Subscribe(ctx context.Context, scope domain.FeedScope) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wctx, cancel := context.WithCancel(clientv3.WithRequireLeader(context.Background()))
	watchChan := f.client.Watch(wctx, f.dir, clientv3.WithPrefix(), clientv3.WithPrevKV())

	sub := &watchSubscription{
		events: make(chan domain.FeedEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go f.run(wctx, watchChan, sub)

	f.logger.Info("watching postings", zap.String("prefix", f.dir))
	return sub, nil
}

func (f *WatchFeed) run(ctx context.Context, watchChan clientv3.WatchChan, sub *watchSubscription) {
	defer close(sub.done)
	defer close(sub.events)

	for watchResp := range watchChan {
		if err := watchResp.Err(); err != nil {
			f.logger.Error("postings watch failed", zap.Error(err))
			return
		}
		for _, event := range watchResp.Events {
			var value, prev []byte
			if event.Kv != nil {
				value = event.Kv.Value
			}
			if event.PrevKv != nil {
				prev = event.PrevKv.Value
			}
			fe, err := decodeWatchEvent(f.scope, f.dir, watchEvent{
				key:            string(event.Kv.Key),
				deleted:        event.Type == clientv3.EventTypeDelete,
				value:          value,
				prevValue:      prev,
				createRevision: event.Kv.CreateRevision,
				modRevision:    event.Kv.ModRevision,
			})
			if err != nil {
				f.logger.Warn("skipping undecodable postings event", zap.String("key", string(event.Kv.Key)), zap.Error(err))
				continue
			}

			select {
			case sub.events <- fe:
			case <-ctx.Done():
				return
			}
		}
	}
	f.logger.Info("stopped watching postings")
}

type watchEvent struct {
	key            string
	deleted        bool
	value          []byte
	prevValue      []byte
	createRevision int64
	modRevision    int64
}

// decodeWatchEvent maps one etcd event to a row change. A put whose create
// and mod revisions match is the first write of the key and so an insert.
func decodeWatchEvent(scope domain.FeedScope, dir string, ev watchEvent) (domain.FeedEvent, error) {
	out := domain.FeedEvent{Schema: scope.Schema, Table: scope.Table}
	id := strings.TrimPrefix(ev.key, dir)
	if id == "" || id == ev.key {
		return out, fmt.Errorf("key %q is outside %q", ev.key, dir)
	}

	if ev.deleted {
		out.Kind = domain.FeedDelete
		old := domain.Posting{ID: id}
		if len(ev.prevValue) > 0 {
			if err := json.Unmarshal(ev.prevValue, &old); err != nil {
				return out, fmt.Errorf("decode previous value: %w", err)
			}
		}
		out.Old = &old
		return out, nil
	}

	var p domain.Posting
	if err := json.Unmarshal(ev.value, &p); err != nil {
		return out, fmt.Errorf("decode value: %w", err)
	}
	if p.ID == "" {
		p.ID = id
	}
	out.New = &p
	out.Kind = domain.FeedUpdate
	if ev.createRevision == ev.modRevision {
		out.Kind = domain.FeedInsert
	}
	if len(ev.prevValue) > 0 {
		var old domain.Posting
		if err := json.Unmarshal(ev.prevValue, &old); err == nil {
			out.Old = &old
		}
	}
	return out, nil
}
