package domain

import (
	"context"
	"time"
)

// FeedEventKind tags a row change delivered by a ChangeFeed.
type FeedEventKind string

const (
	FeedInsert FeedEventKind = "INSERT"
	FeedUpdate FeedEventKind = "UPDATE"
	FeedDelete FeedEventKind = "DELETE"
)

// FeedEvent is a single row change. New is set for inserts and updates,
// Old carries at least the id for deletes.
type FeedEvent struct {
	Kind       FeedEventKind `json:"type"`
	Schema     string        `json:"schema"`
	Table      string        `json:"table"`
	New        *Posting      `json:"new,omitempty"`
	Old        *Posting      `json:"old,omitempty"`
	CommitTime time.Time     `json:"commit_timestamp"`
}

// PostingID returns the id of the row the event refers to.
func (e FeedEvent) PostingID() string {
	switch {
	case e.Kind == FeedDelete && e.Old != nil:
		return e.Old.ID
	case e.New != nil:
		return e.New.ID
	case e.Old != nil:
		return e.Old.ID
	}
	return ""
}

// FeedScope selects the table a subscription listens to.
type FeedScope struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

// Matches reports whether e was emitted for the scoped table.
func (s FeedScope) Matches(e FeedEvent) bool {
	return e.Schema == s.Schema && e.Table == s.Table
}

// Subscription is a live handle on a change feed. Close must be called
// exactly once to release it; Events is closed afterwards.
type Subscription interface {
	Events() <-chan FeedEvent
	Close() error
}

// ChangeFeed opens subscriptions on row changes.
type ChangeFeed interface {
	Subscribe(ctx context.Context, scope FeedScope) (Subscription, error)
}

// FeedPublisher forwards change events to remote readers.
type FeedPublisher interface {
	Publish(ctx context.Context, event FeedEvent) error
	Close()
}
