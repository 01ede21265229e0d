package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// PebbleStore is a Pebble-based implementation of the Store interface.
// Values are cbor encoded. Several stores may share one database as long as
// their prefixes differ.
type PebbleStore[T any] struct {
	db     *pebble.DB
	owned  bool
	mu     sync.RWMutex
	closed bool
	prefix []byte
}

// PebbleStoreConfig configures the Pebble store
type PebbleStoreConfig struct {
	Path   string
	Prefix string     // Optional prefix for keys (useful when sharing a DB)
	DB     *pebble.DB // Optional already opened database; Path is ignored when set
	Opts   *pebble.Options
}

// OpenPebble opens a database that can be shared between stores through
// PebbleStoreConfig.DB. The caller closes it.
func OpenPebble(path string, opts *pebble.Options) (*pebble.DB, error) {
	if opts == nil {
		opts = &pebble.Options{ErrorIfExists: false}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	return db, nil
}

// NewPebbleStore creates a new Pebble-based store
func NewPebbleStore[T any](config PebbleStoreConfig) (*PebbleStore[T], error) {
	db := config.DB
	owned := false
	if db == nil {
		var err error
		db, err = OpenPebble(config.Path, config.Opts)
		if err != nil {
			return nil, err
		}
		owned = true
	}

	prefix := []byte(config.Prefix)
	if len(prefix) == 0 {
		prefix = []byte("data:")
	}

	return &PebbleStore[T]{
		db:     db,
		owned:  owned,
		prefix: prefix,
	}, nil
}

// makeKey creates a key with the prefix
func (p *PebbleStore[T]) makeKey(key string) []byte {
	fullKey := make([]byte, len(p.prefix)+len(key))
	copy(fullKey, p.prefix)
	copy(fullKey[len(p.prefix):], key)
	return fullKey
}

// upperBound returns the smallest key greater than every key under the
// prefix, or nil when the prefix is all 0xff bytes and no such key exists.
func (p *PebbleStore[T]) upperBound() []byte {
	upper := make([]byte, len(p.prefix))
	copy(upper, p.prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}

func (p *PebbleStore[T]) open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStoreClosed
	}
	return nil
}

// scan calls fn for every key and raw value under the prefix
func (p *PebbleStore[T]) scan(fn func(key string, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: p.prefix,
		UpperBound: p.upperBound(),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(string(iter.Key()[len(p.prefix):]), iter.Value()); err != nil {
			return err
		}
	}

	return iter.Error()
}

// Save stores or updates a value
func (p *PebbleStore[T]) Save(ctx context.Context, key string, value T) error {
	if err := p.open(ctx); err != nil {
		return err
	}

	data, err := cbor.Marshal(value)
	if err != nil {
		return err
	}

	return p.db.Set(p.makeKey(key), data, pebble.Sync)
}

// Load retrieves a value by key
func (p *PebbleStore[T]) Load(ctx context.Context, key string) (T, error) {
	var zero T
	if err := p.open(ctx); err != nil {
		return zero, err
	}

	data, closer, err := p.db.Get(p.makeKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	defer closer.Close()

	var value T
	if err := cbor.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("%w: key %q: %v", ErrCorrupted, key, err)
	}

	return value, nil
}

// Delete removes a value
func (p *PebbleStore[T]) Delete(ctx context.Context, key string) error {
	if err := p.open(ctx); err != nil {
		return err
	}

	return p.db.Delete(p.makeKey(key), pebble.Sync)
}

// Clear removes every key under the prefix
func (p *PebbleStore[T]) Clear(ctx context.Context) error {
	if err := p.open(ctx); err != nil {
		return err
	}

	if upper := p.upperBound(); upper != nil {
		return p.db.DeleteRange(p.prefix, upper, pebble.Sync)
	}

	batch := p.db.NewBatch()
	defer batch.Close()
	err := p.scan(func(key string, _ []byte) error {
		return batch.Delete(p.makeKey(key), nil)
	})
	if err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Exists checks if a key exists
func (p *PebbleStore[T]) Exists(ctx context.Context, key string) (bool, error) {
	if err := p.open(ctx); err != nil {
		return false, err
	}

	_, closer, err := p.db.Get(p.makeKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}

// List returns all keys
func (p *PebbleStore[T]) List(ctx context.Context) ([]string, error) {
	if err := p.open(ctx); err != nil {
		return nil, err
	}

	var keys []string
	err := p.scan(func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Count returns the total number of items
func (p *PebbleStore[T]) Count(ctx context.Context) (int64, error) {
	if err := p.open(ctx); err != nil {
		return 0, err
	}

	var count int64
	err := p.scan(func(string, []byte) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Verify decodes every value under the prefix and stops at the first one
// that does not decode.
func (p *PebbleStore[T]) Verify(ctx context.Context) error {
	if err := p.open(ctx); err != nil {
		return err
	}

	return p.scan(func(key string, raw []byte) error {
		var value T
		if err := cbor.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrCorrupted, key, err)
		}
		return ctx.Err()
	})
}

// Close closes the store. A database passed in through the config is left
// open for its owner.
func (p *PebbleStore[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrStoreClosed
	}

	p.closed = true
	if !p.owned {
		return nil
	}
	return p.db.Close()
}
