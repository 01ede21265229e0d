package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of the Store interface
type MemoryStore[T any] struct {
	mu        sync.RWMutex
	data      map[string]T
	closed    bool
	corrupted string // key reported by Verify, empty when healthy
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{
		data: make(map[string]T),
	}
}

// open must be called with mu held.
func (m *MemoryStore[T]) open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return ErrStoreClosed
	}
	return nil
}

// Save stores or updates a value
func (m *MemoryStore[T]) Save(ctx context.Context, key string, value T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open(ctx); err != nil {
		return err
	}

	m.data[key] = value
	return nil
}

// Load retrieves a value by key
func (m *MemoryStore[T]) Load(ctx context.Context, key string) (T, error) {
	var zero T

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.open(ctx); err != nil {
		return zero, err
	}

	value, ok := m.data[key]
	if !ok {
		return zero, ErrNotFound
	}

	return value, nil
}

// Delete removes a value
func (m *MemoryStore[T]) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open(ctx); err != nil {
		return err
	}

	delete(m.data, key)
	return nil
}

// Clear removes every value and resets the corruption marker
func (m *MemoryStore[T]) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open(ctx); err != nil {
		return err
	}

	m.data = make(map[string]T)
	m.corrupted = ""
	return nil
}

// Exists checks if a key exists
func (m *MemoryStore[T]) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.open(ctx); err != nil {
		return false, err
	}

	_, ok := m.data[key]
	return ok, nil
}

// List returns all keys in lexical order
func (m *MemoryStore[T]) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.open(ctx); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// Count returns the total number of items
func (m *MemoryStore[T]) Count(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.open(ctx); err != nil {
		return 0, err
	}

	return int64(len(m.data)), nil
}

// MarkCorrupted flags the store as corrupted at key. Values held in memory
// cannot fail to decode, so this is how in-process owners report damage.
func (m *MemoryStore[T]) MarkCorrupted(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if key == "" {
		key = "*"
	}
	m.corrupted = key
}

// Verify reports ErrCorrupted if MarkCorrupted was called since the last Clear
func (m *MemoryStore[T]) Verify(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.open(ctx); err != nil {
		return err
	}
	if m.corrupted != "" {
		return fmt.Errorf("%w: key %q", ErrCorrupted, m.corrupted)
	}
	return nil
}

// Close closes the store
func (m *MemoryStore[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.closed = true
	m.data = nil
	return nil
}
