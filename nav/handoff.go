package nav

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHandoffTTL = time.Minute

type handoffEntry[T any] struct {
	value   T
	expires time.Time
}

// Handoff passes a value from one destination to the next under an opaque,
// single-use token. Entries not taken within the TTL are dropped.
type Handoff[T any] struct {
	mu      sync.Mutex
	entries map[string]handoffEntry[T]
	ttl     time.Duration
	now     func() time.Time
}

// NewHandoff creates a handoff registry. ttl <= 0 selects one minute.
func NewHandoff[T any](ttl time.Duration) *Handoff[T] {
	if ttl <= 0 {
		ttl = defaultHandoffTTL
	}
	return &Handoff[T]{
		entries: make(map[string]handoffEntry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores v and returns its token. Expired entries are dropped first.
func (h *Handoff[T]) Put(v T) string {
	token := uuid.NewString()

	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	h.sweep(now)
	h.entries[token] = handoffEntry[T]{value: v, expires: now.Add(h.ttl)}
	return token
}

// Take returns the value stored under token and forgets it
func (h *Handoff[T]) Take(token string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	e, ok := h.entries[token]
	if !ok {
		return zero, false
	}
	delete(h.entries, token)
	if h.now().After(e.expires) {
		return zero, false
	}
	return e.value, true
}

// Sweep drops expired entries and returns how many were removed
func (h *Handoff[T]) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sweep(h.now())
}

// sweep must be called with mu held
func (h *Handoff[T]) sweep(now time.Time) int {
	removed := 0
	for token, e := range h.entries {
		if now.After(e.expires) {
			delete(h.entries, token)
			removed++
		}
	}
	return removed
}

// Len returns the number of pending entries
func (h *Handoff[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}
