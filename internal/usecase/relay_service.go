package usecase

import (
	"context"
	"time"

	"jobboard/internal/domain"
	"jobboard/internal/metrics"

	"go.uber.org/zap"
)

// RelayService forwards the store's change feed to remote readers. With a
// leader manager only the elected instance relays; without one this
// instance always does.
type RelayService struct {
	leaderManager domain.LeaderElectionManager
	feed          domain.ChangeFeed
	scope         domain.FeedScope
	publisher     domain.FeedPublisher
	nodeID        string
	retryDelay    time.Duration
	logger        *zap.Logger
}

func NewRelayService(leaderManager domain.LeaderElectionManager, feed domain.ChangeFeed, scope domain.FeedScope,
	publisher domain.FeedPublisher, nodeID string, logger *zap.Logger) *RelayService {
	return &RelayService{
		leaderManager: leaderManager,
		feed:          feed,
		scope:         scope,
		publisher:     publisher,
		nodeID:        nodeID,
		retryDelay:    5 * time.Second,
		logger:        logger.With(zap.String("component", "relay"), zap.String("node_id", nodeID)),
	}
}

// Start blocks until ctx is done.
func (s *RelayService) Start(ctx context.Context) error {
	s.logger.Info("relay service starting")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("relay service shutting down")
			return ctx.Err()
		default:
		}

		lost, err := s.campaign(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("leadership campaign failed, retrying", zap.Error(err), zap.Duration("retry_in", s.retryDelay))
			if !s.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		s.logger.Info("relaying change feed")
		if err := s.relay(ctx, lost); err != nil {
			s.logger.Warn("change feed relay stopped", zap.Error(err))
		}
		if s.leaderManager != nil {
			resignCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = s.leaderManager.Resign(resignCtx)
			cancel()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.sleep(ctx) {
			return ctx.Err()
		}
	}
}

func (s *RelayService) campaign(ctx context.Context) (<-chan struct{}, error) {
	if s.leaderManager == nil {
		return nil, nil
	}
	s.logger.Info("campaigning for relay leadership")
	return s.leaderManager.Campaign(ctx)
}

func (s *RelayService) sleep(ctx context.Context) bool {
	t := time.NewTimer(s.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// relay pumps one subscription until leadership is lost, ctx ends or the
// feed closes.
func (s *RelayService) relay(ctx context.Context, lost <-chan struct{}) error {
	sub, err := s.feed.Subscribe(ctx, s.scope)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			s.logger.Warn("lost relay leadership")
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			s.forward(ctx, ev)
		}
	}
}

func (s *RelayService) forward(ctx context.Context, ev domain.FeedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		metrics.FeedEventsRelayedTotal.WithLabelValues("failed").Inc()
		s.logger.Error("failed to relay feed event", zap.String("id", ev.PostingID()), zap.Error(err))
		return
	}
	metrics.FeedEventsRelayedTotal.WithLabelValues("success").Inc()
}
