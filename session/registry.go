package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/axmq/launchgate/pkg/logger"
	"github.com/axmq/launchgate/store"
)

// AccountStoreFactory opens the local store of one account
type AccountStoreFactory func(userID string) (store.Store[[]byte], error)

// MemoryAccountStores keeps every account store in memory
func MemoryAccountStores() AccountStoreFactory {
	return func(string) (store.Store[[]byte], error) {
		return store.NewMemoryStore[[]byte](), nil
	}
}

// AccountKeyPrefix returns the key prefix of the store of userID. The user ID
// is terminated by a NUL byte, which a Matrix user ID cannot contain, so the
// prefix of one account is never a prefix of another.
func AccountKeyPrefix(userID string) string {
	return "account:" + userID + "\x00"
}

// PebbleAccountStores keeps account stores in db, one key prefix per account
func PebbleAccountStores(db *pebble.DB) AccountStoreFactory {
	return func(userID string) (store.Store[[]byte], error) {
		return store.NewPebbleStore[[]byte](store.PebbleStoreConfig{
			DB:     db,
			Prefix: AccountKeyPrefix(userID),
		})
	}
}

// RedisAccountStores keeps account stores in Redis under base.Prefix
// followed by the user ID
func RedisAccountStores(base store.RedisStoreConfig) AccountStoreFactory {
	return func(userID string) (store.Store[[]byte], error) {
		cfg := base
		cfg.Prefix = base.Prefix + AccountKeyPrefix(userID)
		return store.NewRedisStore[[]byte](cfg)
	}
}

// Registry owns the set of signed-in sessions and their persisted credentials
type Registry struct {
	mu            sync.RWMutex
	credentials   store.Store[Credentials]
	accountStores AccountStoreFactory
	sessions      map[string]*Session // userID -> session
	log           logger.Logger
	closed        bool
}

// RegistryConfig configures the session registry
type RegistryConfig struct {
	Credentials   store.Store[Credentials]
	AccountStores AccountStoreFactory
	Logger        logger.Logger
}

// NewRegistry creates a new session registry
func NewRegistry(config RegistryConfig) *Registry {
	if config.Credentials == nil {
		config.Credentials = store.NewMemoryStore[Credentials]()
	}
	if config.AccountStores == nil {
		config.AccountStores = MemoryAccountStores()
	}

	return &Registry{
		credentials:   config.Credentials,
		accountStores: config.AccountStores,
		sessions:      make(map[string]*Session),
		log:           logger.OrNop(config.Logger).With("component", "registry"),
	}
}

// Load resumes every session found in the credentials store. Sessions whose
// sync token is persisted come back with their initial sync complete.
func (r *Registry) Load(ctx context.Context) error {
	userIDs, err := r.credentials.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	for _, userID := range userIDs {
		if _, ok := r.sessions[userID]; ok {
			continue
		}

		creds, err := r.credentials.Load(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load credentials for %s: %w", userID, err)
		}

		s, err := r.open(creds)
		if err != nil {
			return err
		}

		token, err := s.account.Load(ctx, KeyNextBatch)
		switch {
		case err == nil:
			s.restore(string(token))
		case errors.Is(err, store.ErrNotFound):
		default:
			// A broken store is reported at readiness time through Verify.
			r.log.Warn("failed to restore sync token", "user_id", userID, "error", err)
		}

		r.sessions[userID] = s
		r.log.Debug("session resumed", "user_id", userID, "synced", s.IsInitialSyncComplete())
	}

	return nil
}

// open must be called with mu held
func (r *Registry) open(creds Credentials) (*Session, error) {
	account, err := r.accountStores(creds.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to open account store for %s: %w", creds.UserID, err)
	}
	return New(creds, account), nil
}

// Add persists credentials for a newly signed-in account and returns its session
func (r *Registry) Add(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.CreatedAt.IsZero() {
		creds.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if _, ok := r.sessions[creds.UserID]; ok {
		return nil, ErrSessionExists
	}

	if err := r.credentials.Save(ctx, creds.UserID, creds); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}

	s, err := r.open(creds)
	if err != nil {
		_ = r.credentials.Delete(ctx, creds.UserID)
		return nil, err
	}

	r.sessions[creds.UserID] = s
	r.log.Info("session added", "user_id", creds.UserID)
	return s, nil
}

// Get returns the session of userID
func (r *Registry) Get(userID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Sessions returns a snapshot of all sessions ordered by user ID
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserID() < sessions[j].UserID()
	})
	return sessions
}

// ActiveSessions returns the active subset of Sessions
func (r *Registry) ActiveSessions() []*Session {
	all := r.Sessions()
	active := all[:0]
	for _, s := range all {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active
}

// Count returns the number of registered sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove forgets a session and its credentials but keeps its account data
func (r *Registry) Remove(ctx context.Context, userID string) error {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	if err := r.credentials.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return closeAccount(s)
}

// Logout discards everything known locally about a session: its account
// store is cleared and its credentials deleted.
func (r *Registry) Logout(ctx context.Context, userID string) error {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.SetState(StateLoggedOut)

	var errs []error
	if s.account != nil {
		if err := s.account.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear account store: %w", err))
		}
	}
	if err := r.credentials.Delete(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete credentials: %w", err))
	}
	if err := closeAccount(s); err != nil {
		errs = append(errs, err)
	}

	r.log.Info("session logged out", "user_id", userID)
	return errors.Join(errs...)
}

func closeAccount(s *Session) error {
	if s.account == nil {
		return nil
	}
	if err := s.account.Close(); err != nil && !errors.Is(err, store.ErrStoreClosed) {
		return fmt.Errorf("failed to close account store: %w", err)
	}
	return nil
}

// Close closes every account store and the credentials store
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	r.closed = true

	var errs []error
	for _, s := range r.sessions {
		if err := closeAccount(s); err != nil {
			errs = append(errs, err)
		}
	}
	r.sessions = make(map[string]*Session)

	if err := r.credentials.Close(); err != nil && !errors.Is(err, store.ErrStoreClosed) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
