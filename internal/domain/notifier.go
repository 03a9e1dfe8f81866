package domain

import "context"

// Notifier pushes a plain-text announcement to the messaging channel.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
