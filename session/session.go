package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axmq/launchgate/store"
)

// State represents the session state
type State byte

const (
	StateInactive  State = iota // Credentials known, session not resumed
	StateActive                 // Session resumed and usable
	StateLoggedOut              // Session logged out, local state discarded
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateActive:
		return "active"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Credentials is the persisted record of a signed-in account
type Credentials struct {
	UserID        string    `json:"user_id" cbor:"1,keyasint"`
	DeviceID      string    `json:"device_id" cbor:"2,keyasint"`
	HomeserverURL string    `json:"homeserver_url" cbor:"3,keyasint"`
	AccessToken   string    `json:"access_token" cbor:"4,keyasint"`
	CreatedAt     time.Time `json:"created_at" cbor:"5,keyasint"`
}

// Validate checks that the credentials can drive a session
func (c Credentials) Validate() error {
	if !strings.HasPrefix(c.UserID, "@") || !strings.Contains(c.UserID, ":") || strings.ContainsRune(c.UserID, 0) {
		return fmt.Errorf("%w: malformed user id %q", ErrInvalidCredentials, c.UserID)
	}
	if c.HomeserverURL == "" {
		return fmt.Errorf("%w: missing homeserver url", ErrInvalidCredentials)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("%w: missing access token", ErrInvalidCredentials)
	}
	return nil
}

// Account store keys
const (
	KeyNextBatch = "sync:next_batch"
)

// SyncListener is called once when a session finishes its initial sync
type SyncListener func(s *Session)

// ListenerID identifies a registered SyncListener
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn SyncListener
}

// Session is one signed-in Matrix account
type Session struct {
	mu sync.RWMutex

	creds               Credentials
	state               State
	initialSyncComplete bool
	nextBatch           string
	account             store.Store[[]byte]

	// copy-on-write so listeners may be removed while being dispatched
	listenersMu    sync.Mutex
	listeners      atomic.Pointer[[]listenerEntry]
	nextListenerID ListenerID
}

// New creates an active session over the given account store
func New(creds Credentials, account store.Store[[]byte]) *Session {
	s := &Session{
		creds:   creds,
		state:   StateActive,
		account: account,
	}
	empty := make([]listenerEntry, 0)
	s.listeners.Store(&empty)
	return s
}

// UserID returns the Matrix user ID of the account
func (s *Session) UserID() string {
	return s.creds.UserID
}

// Credentials returns a copy of the session credentials
func (s *Session) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// State returns the current state
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsActive reports whether the session is resumed and usable
func (s *Session) IsActive() bool {
	return s.State() == StateActive
}

// SetState changes the session state
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// IsInitialSyncComplete reports whether the first full sync has finished
func (s *Session) IsInitialSyncComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialSyncComplete
}

// NextBatch returns the latest sync token
func (s *Session) NextBatch() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextBatch
}

// Store returns the account store holding local sync state
func (s *Session) Store() store.Store[[]byte] {
	return s.account
}

// IsStoreCorrupted verifies the account store
func (s *Session) IsStoreCorrupted(ctx context.Context) (bool, error) {
	if s.account == nil {
		return false, ErrNoAccountStore
	}
	return store.IsCorrupted(ctx, s.account)
}

// AddSyncListener registers l to be called when the initial sync completes.
// Listeners added after completion are not called.
func (s *Session) AddSyncListener(l SyncListener) ListenerID {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	s.nextListenerID++
	id := s.nextListenerID

	old := *s.listeners.Load()
	next := make([]listenerEntry, len(old)+1)
	copy(next, old)
	next[len(old)] = listenerEntry{id: id, fn: l}
	s.listeners.Store(&next)

	return id
}

// RemoveSyncListener unregisters a listener. Unknown IDs are ignored.
func (s *Session) RemoveSyncListener(id ListenerID) bool {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	old := *s.listeners.Load()
	for i, e := range old {
		if e.id != id {
			continue
		}
		next := make([]listenerEntry, 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		s.listeners.Store(&next)
		return true
	}
	return false
}

// ListenerCount returns the number of registered sync listeners
func (s *Session) ListenerCount() int {
	return len(*s.listeners.Load())
}

// CompleteInitialSync records the sync token. The first call marks the
// initial sync complete and notifies listeners; later calls only move the token.
func (s *Session) CompleteInitialSync(nextBatch string) {
	s.mu.Lock()
	s.nextBatch = nextBatch
	first := !s.initialSyncComplete
	s.initialSyncComplete = true
	s.mu.Unlock()

	if !first {
		return
	}

	for _, e := range *s.listeners.Load() {
		e.fn(s)
	}
}

// restore marks a session synced from persisted state without notifying
func (s *Session) restore(nextBatch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextBatch = nextBatch
	s.initialSyncComplete = nextBatch != ""
}
