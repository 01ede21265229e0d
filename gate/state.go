package gate

// State is the position of the gate in its lifecycle
type State byte

const (
	StateIdle           State = iota // Not started
	StateWaiting                     // Waiting for initial syncs and push registration
	StateReady                       // Both preconditions hold, navigating home
	StateReadyCorrupted              // Both preconditions hold, a store is corrupted
	StateNavigated                   // Home opened (terminal)
	StateLoggedOut                   // Sessions logged out (terminal)
	StateAborted                     // Context ended before the stores were checked (terminal)
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateReady:
		return "ready"
	case StateReadyCorrupted:
		return "ready_corrupted"
	case StateNavigated:
		return "navigated"
	case StateLoggedOut:
		return "logged_out"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no transition can leave s
func (s State) Terminal() bool {
	return s == StateNavigated || s == StateLoggedOut || s == StateAborted
}

// Outcome is the terminal result of the gate
type Outcome byte

const (
	OutcomeNone Outcome = iota
	OutcomeNavigated
	OutcomeLoggedOut
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNavigated:
		return "navigated"
	case OutcomeLoggedOut:
		return "logged_out"
	case OutcomeAborted:
		return "aborted"
	default:
		return "none"
	}
}
