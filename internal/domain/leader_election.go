package domain

import "context"

// LeaderElectionManager decides which server instance relays the change
// feed. Campaign blocks until leadership is won and returns a channel
// closed when it is lost.
type LeaderElectionManager interface {
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}
