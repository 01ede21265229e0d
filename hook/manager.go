package hook

import (
	"sync"
	"sync/atomic"
	"time"
)

// Manager manages the registration and invocation of hooks
type Manager struct {
	mu       sync.Mutex
	hooksPtr atomic.Pointer[[]Hook]
	index    map[string]int
}

// NewManager creates a new hooks manager
func NewManager() *Manager {
	m := &Manager{
		index: make(map[string]int),
	}
	hooks := make([]Hook, 0)
	m.hooksPtr.Store(&hooks)
	return m
}

// Add adds a hook to the manager
// Returns an error if a hook with the same ID already exists
func (m *Manager) Add(hook Hook) error {
	if hook == nil {
		return ErrEmptyHookID
	}

	id := hook.ID()
	if id == "" {
		return ErrEmptyHookID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.index[id]; exists {
		return ErrHookAlreadyExists
	}

	oldHooks := *m.hooksPtr.Load()
	newHooks := make([]Hook, len(oldHooks)+1)
	copy(newHooks, oldHooks)
	newHooks[len(oldHooks)] = hook

	m.index[id] = len(oldHooks)
	m.hooksPtr.Store(&newHooks)

	return nil
}

// Remove removes a hook by its ID
// Returns an error if the hook is not found
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, exists := m.index[id]
	if !exists {
		return ErrHookNotFound
	}

	oldHooks := *m.hooksPtr.Load()
	newHooks := make([]Hook, len(oldHooks)-1)
	copy(newHooks[:idx], oldHooks[:idx])
	copy(newHooks[idx:], oldHooks[idx+1:])

	delete(m.index, id)
	for i := idx; i < len(newHooks); i++ {
		m.index[newHooks[i].ID()] = i
	}

	m.hooksPtr.Store(&newHooks)

	return nil
}

// Get retrieves a hook by its ID
func (m *Manager) Get(id string) (Hook, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, exists := m.index[id]
	if !exists {
		return nil, false
	}

	hooks := *m.hooksPtr.Load()
	return hooks[idx], true
}

// List returns a copy of all registered hooks
func (m *Manager) List() []Hook {
	hooks := *m.hooksPtr.Load()
	result := make([]Hook, len(hooks))
	copy(result, hooks)
	return result
}

// Count returns the number of registered hooks
func (m *Manager) Count() int {
	return len(*m.hooksPtr.Load())
}

// Clear stops and removes all hooks
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range *m.hooksPtr.Load() {
		_ = h.Stop()
	}

	newHooks := make([]Hook, 0)
	m.hooksPtr.Store(&newHooks)
	m.index = make(map[string]int)
}

// each calls fn for every hook providing event
func (m *Manager) each(event Event, fn func(Hook) error) {
	for _, hook := range *m.hooksPtr.Load() {
		if hook.Provides(event) {
			_ = fn(hook)
		}
	}
}

// OnGateStarted invokes all OnGateStarted hooks
func (m *Manager) OnGateStarted(info GateInfo) {
	m.each(OnGateStarted, func(h Hook) error { return h.OnGateStarted(info) })
}

// OnSessionSynced invokes all OnSessionSynced hooks
func (m *Manager) OnSessionSynced(userID string, pending int) {
	m.each(OnSessionSynced, func(h Hook) error { return h.OnSessionSynced(userID, pending) })
}

// OnPushRegistered invokes all OnPushRegistered hooks
func (m *Manager) OnPushRegistered() {
	m.each(OnPushRegistered, func(h Hook) error { return h.OnPushRegistered() })
}

// OnPushFallback invokes all OnPushFallback hooks
func (m *Manager) OnPushFallback(err error) {
	m.each(OnPushFallback, func(h Hook) error { return h.OnPushFallback(err) })
}

// OnReady invokes all OnReady hooks
func (m *Manager) OnReady(report ReadyReport) {
	m.each(OnReady, func(h Hook) error { return h.OnReady(report) })
}

// OnNavigated invokes all OnNavigated hooks
func (m *Manager) OnNavigated(elapsed time.Duration) {
	m.each(OnNavigated, func(h Hook) error { return h.OnNavigated(elapsed) })
}

// OnLoggedOut invokes all OnLoggedOut hooks
func (m *Manager) OnLoggedOut(report ReadyReport, elapsed time.Duration) {
	m.each(OnLoggedOut, func(h Hook) error { return h.OnLoggedOut(report, elapsed) })
}

// OnGateClosed invokes all OnGateClosed hooks
func (m *Manager) OnGateClosed(state string) {
	m.each(OnGateClosed, func(h Hook) error { return h.OnGateClosed(state) })
}
