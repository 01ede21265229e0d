package hook

import (
	"time"
)

// Event represents hook event types
type Event byte

const (
	OnGateStarted Event = iota
	OnSessionSynced
	OnPushRegistered
	OnPushFallback
	OnReady
	OnNavigated
	OnLoggedOut
	OnGateClosed
)

// String returns the string representation of the event
func (e Event) String() string {
	names := [...]string{
		"OnGateStarted",
		"OnSessionSynced",
		"OnPushRegistered",
		"OnPushFallback",
		"OnReady",
		"OnNavigated",
		"OnLoggedOut",
		"OnGateClosed",
	}
	if e < Event(len(names)) {
		return names[e]
	}
	return "Unknown"
}

// Hook observes the launch readiness gate. Hooks are notified after the gate
// has committed a transition; their errors are ignored by the gate.
type Hook interface {
	// ID returns a unique identifier for this hook
	ID() string

	// Provides indicates if the hook provides implementation for the given event
	Provides(event Event) bool

	// Init initializes the hook with the given configuration
	Init(config any) error

	// Stop stops the hook
	Stop() error

	// OnGateStarted is called once the gate has registered its listeners
	OnGateStarted(info GateInfo) error

	// OnSessionSynced is called when a pending session finishes its initial sync
	OnSessionSynced(userID string, pending int) error

	// OnPushRegistered is called when push registration succeeds
	OnPushRegistered() error

	// OnPushFallback is called when push registration fails and the
	// alternate transport is selected
	OnPushFallback(err error) error

	// OnReady is called when every precondition holds, before navigating
	OnReady(report ReadyReport) error

	// OnNavigated is called after the home destination was opened
	OnNavigated(elapsed time.Duration) error

	// OnLoggedOut is called after a corrupted store forced a logout
	OnLoggedOut(report ReadyReport, elapsed time.Duration) error

	// OnGateClosed is called when the gate is torn down
	OnGateClosed(state string) error
}

// GateInfo describes a freshly started gate
type GateInfo struct {
	Sessions       int
	Pending        int
	PushRegistered bool
	StartedAt      time.Time
}

// ReadyReport describes the gate at the moment both preconditions hold
type ReadyReport struct {
	Sessions  []string // active user IDs
	Corrupted []string // user IDs whose store failed verification
}

// IsCorrupted reports whether any store failed verification
func (r ReadyReport) IsCorrupted() bool {
	return len(r.Corrupted) > 0
}
