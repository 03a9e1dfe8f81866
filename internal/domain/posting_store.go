package domain

import (
	"context"
	"errors"
)

// ErrPostingNotFound is returned when no posting has the requested id.
var ErrPostingNotFound = errors.New("posting not found")

// SnapshotSource returns every posting ordered by CreatedAt, newest first.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]Posting, error)
}

// PostingStore is the system of record for postings.
type PostingStore interface {
	SnapshotSource
	Get(ctx context.Context, id string) (*Posting, error)
	Insert(ctx context.Context, fields PostingFields) (*Posting, error)
	Update(ctx context.Context, id string, fields PostingFields) (*Posting, error)
	Delete(ctx context.Context, id string) error
}
