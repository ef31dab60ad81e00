package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store holds rendered fragments keyed by their resolved path.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value with the given TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Error wraps a failing backend operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return "cache " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
