package nats

import (
	"context"
	"fmt"
	"sync"

	"jobboard/internal/domain"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ChangeFeed reads the events relayed by a Publisher. Every subscriber gets
// every event; there is no queue group.
type ChangeFeed struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

var _ domain.ChangeFeed = (*ChangeFeed)(nil)

func NewChangeFeed(conn *nats.Conn, subject string, logger *zap.Logger) *ChangeFeed {
	if subject == "" {
		subject = DefaultSubject
	}
	return &ChangeFeed{
		conn:    conn,
		subject: subject,
		logger:  logger.With(zap.String("component", "nats-change-feed")),
	}
}

type subscription struct {
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	events chan domain.FeedEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *subscription) Events() <-chan domain.FeedEvent {
	return s.events
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.err = s.sub.Unsubscribe()
		close(s.stop)
		<-s.done
	})
	return s.err
}

func (f *ChangeFeed) Subscribe(ctx context.Context, scope domain.FeedScope) (domain.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs := make(chan *nats.Msg, 256)
	natsSub, err := f.conn.ChanSubscribe(f.subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", f.subject, err)
	}

	sub := &subscription{
		sub:    natsSub,
		msgs:   msgs,
		events: make(chan domain.FeedEvent, 64),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go f.run(scope, sub)

	f.logger.Info("subscribed to relayed changes", zap.String("subject", f.subject))
	return sub, nil
}

func (f *ChangeFeed) run(scope domain.FeedScope, sub *subscription) {
	defer close(sub.done)
	defer close(sub.events)

	for {
		select {
		case <-sub.stop:
			return
		case msg := <-sub.msgs:
			event, err := decodeEvent(msg.Data)
			if err != nil {
				f.logger.Warn("skipping undecodable feed message",
					zap.String("subject", msg.Subject),
					zap.Error(err))
				continue
			}
			if !scope.Matches(event) {
				continue
			}
			select {
			case sub.events <- event:
			case <-sub.stop:
				return
			}
		}
	}
}
