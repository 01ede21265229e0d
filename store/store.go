package store

import (
	"context"
	"errors"
)

// Store is a generic key-value store used for session credentials,
// per-account sync data and pusher registrations.
type Store[T any] interface {
	Reader[T]
	Metrics

	// Save stores or updates a value by key
	Save(ctx context.Context, key string, value T) error

	// Delete removes a value by key
	Delete(ctx context.Context, key string) error

	// Clear removes every key owned by the store
	Clear(ctx context.Context) error

	// Close closes the store
	Close() error
}

type Reader[T any] interface {
	// Load retrieves a value by key
	Load(ctx context.Context, key string) (T, error)

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys
	List(ctx context.Context) ([]string, error)
}

// Metrics provides metrics about the store
type Metrics interface {
	// Count returns the total number of items
	Count(ctx context.Context) (int64, error)
}

// Verifier is implemented by stores that can check the integrity of their
// persisted values. Verify returns an error wrapping ErrCorrupted when a value
// can no longer be decoded.
type Verifier interface {
	Verify(ctx context.Context) error
}

// IsCorrupted runs Verify when s supports it. Stores that cannot verify
// themselves are reported healthy.
func IsCorrupted(ctx context.Context, s any) (bool, error) {
	v, ok := s.(Verifier)
	if !ok {
		return false, nil
	}
	err := v.Verify(ctx)
	if err == nil {
		return false, nil
	}
	if errors.Is(err, ErrCorrupted) {
		return true, nil
	}
	return false, err
}
