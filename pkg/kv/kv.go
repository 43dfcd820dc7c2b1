// Package kv abstracts the external key-value store that holds provider API
// keys and synced presets. The service itself keeps no durable state; a Store
// is the only persistence boundary.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value. Store errors that
// are not ErrNotFound indicate an I/O or backend failure and must be kept
// distinct from absence by callers.
var ErrNotFound = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
