package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"jobboard/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// NotifyFeed listens for trigger notifications on NotifyChannel and turns
// them into row change events. Inserts and updates are read back from the
// store since the notification only carries the id.
type NotifyFeed struct {
	pool    *pgxpool.Pool
	store   *Store
	channel string
	logger  *zap.Logger
}

func NewNotifyFeed(pool *pgxpool.Pool, store *Store, logger *zap.Logger) *NotifyFeed {
	return &NotifyFeed{
		pool:    pool,
		store:   store,
		channel: NotifyChannel,
		logger:  logger.With(zap.String("component", "postgres-change-feed")),
	}
}

type notifySubscription struct {
	events chan domain.FeedEvent
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *notifySubscription) Events() <-chan domain.FeedEvent {
	return s.events
}

func (s *notifySubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Subscribe takes a connection out of the pool for the lifetime of the
// subscription and issues LISTEN on it.
func (f *NotifyFeed) Subscribe(ctx context.Context, scope domain.FeedScope) (domain.Subscription, error) {
	pooled, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	conn := pooled.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen on %s: %w", f.channel, err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	sub := &notifySubscription{
		events: make(chan domain.FeedEvent, 64),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go f.run(lctx, conn, scope, sub)

	f.logger.Info("listening for posting changes", zap.String("channel", f.channel))
	return sub, nil
}

func (f *NotifyFeed) run(ctx context.Context, conn *pgx.Conn, scope domain.FeedScope, sub *notifySubscription) {
	defer close(sub.done)
	defer close(sub.events)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.logger.Error("waiting for notification failed", zap.Error(err))
			}
			return
		}

		payload, err := decodeNotification(n.Payload)
		if err != nil {
			f.logger.Warn("skipping undecodable notification", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		if !scope.Matches(domain.FeedEvent{Schema: payload.Schema, Table: payload.Table}) {
			continue
		}

		ev, ok := f.resolve(ctx, payload)
		if !ok {
			continue
		}

		select {
		case sub.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// resolve reads the current row for inserts and updates. A row that is
// gone by the time it is read is skipped; its delete notification follows.
func (f *NotifyFeed) resolve(ctx context.Context, payload notification) (domain.FeedEvent, bool) {
	ev := payload.event()
	if ev.Kind == domain.FeedDelete {
		return ev, true
	}

	p, err := f.store.Get(ctx, payload.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrPostingNotFound) && ctx.Err() == nil {
			f.logger.Error("failed to read changed posting", zap.String("id", payload.ID), zap.Error(err))
		}
		return ev, false
	}
	ev.New = p
	return ev, true
}

type notification struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Type   string `json:"type"`
	ID     string `json:"id"`
}

func decodeNotification(raw string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	n.Type = strings.ToUpper(n.Type)
	switch domain.FeedEventKind(n.Type) {
	case domain.FeedInsert, domain.FeedUpdate, domain.FeedDelete:
	default:
		return n, fmt.Errorf("unknown operation %q", n.Type)
	}
	if n.ID == "" {
		return n, errors.New("notification has no id")
	}
	return n, nil
}

func (n notification) event() domain.FeedEvent {
	ev := domain.FeedEvent{
		Kind:       domain.FeedEventKind(n.Type),
		Schema:     n.Schema,
		Table:      n.Table,
		CommitTime: time.Now().UTC(),
	}
	if ev.Kind == domain.FeedDelete {
		ev.Old = &domain.Posting{ID: n.ID}
	}
	return ev
}
