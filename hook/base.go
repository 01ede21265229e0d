package hook

import "time"

// Base provides a default no-op implementation of the Hook interface
// Users can embed this in their custom hooks and override only the methods they need
type Base struct {
	id string
}

// NewHookBase creates a new base hook with the given ID
func NewHookBase(id string) *Base {
	return &Base{id: id}
}

// ID returns the unique identifier for this hook
func (h *Base) ID() string {
	return h.id
}

// Provides determines if the hook provides the given event
func (h *Base) Provides(event Event) bool {
	return false
}

// Init initializes the hook with the given config
func (h *Base) Init(config any) error {
	return nil
}

// Stop stops the hook
func (h *Base) Stop() error {
	return nil
}

func (h *Base) OnGateStarted(info GateInfo) error {
	return nil
}

func (h *Base) OnSessionSynced(userID string, pending int) error {
	return nil
}

func (h *Base) OnPushRegistered() error {
	return nil
}

func (h *Base) OnPushFallback(err error) error {
	return nil
}

func (h *Base) OnReady(report ReadyReport) error {
	return nil
}

func (h *Base) OnNavigated(elapsed time.Duration) error {
	return nil
}

func (h *Base) OnLoggedOut(report ReadyReport, elapsed time.Duration) error {
	return nil
}

func (h *Base) OnGateClosed(state string) error {
	return nil
}
