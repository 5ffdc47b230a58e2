package kvstore

import (
	"context"
	"errors"
)

// Store is a string key-value store that survives process restarts.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set overwrites the value stored under key
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing a missing key is not an error
	Remove(ctx context.Context, key string) error
}

var (
	ErrNotFound    = errors.New("key not found")
	ErrCircuitOpen = errors.New("store circuit is open")
)
