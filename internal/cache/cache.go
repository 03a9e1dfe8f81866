package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("key not found in cache")
	ErrInvalidValue = errors.New("invalid value for cache")
	ErrClosed       = errors.New("cache is closed")
)

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get decodes the stored bytes into value, which must be a *string or
	// an encoding.BinaryUnmarshaler.
	Get(ctx context.Context, key string, value interface{}) error

	Delete(ctx context.Context, key string) error

	Close() error
}

type Options struct {
	DefaultTTL time.Duration

	RedisURL string

	RedisPassword string

	RedisDB int
}

func DefaultOptions() Options {
	return Options{
		DefaultTTL: 5 * time.Minute,
	}
}
