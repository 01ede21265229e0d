package gate

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/axmq/launchgate/hook"
	"github.com/axmq/launchgate/nav"
	"github.com/axmq/launchgate/pkg/logger"
	"github.com/axmq/launchgate/push"
	"github.com/axmq/launchgate/session"
)

// Config configures a Gate
type Config struct {
	Registrar push.Registrar
	Navigator nav.Navigator
	Hooks     *hook.Manager
	Logger    logger.Logger
}

// Gate holds the application at launch until every active session has
// finished its initial sync and push registration has completed, then
// navigates home exactly once. If a session store is corrupted at that point
// every session is logged out instead.
type Gate struct {
	registrar push.Registrar
	navigator nav.Navigator
	hooks     *hook.Manager
	log       logger.Logger

	mu                         sync.Mutex
	state                      State
	outcome                    Outcome
	err                        error
	closed                     bool
	ctx                        context.Context
	startedAt                  time.Time
	sessions                   []*session.Session
	listeners                  map[*session.Session]session.ListenerID
	pending                    map[*session.Session]struct{}
	initialSyncComplete        bool
	pusherRegistrationComplete bool
	done                       chan struct{}
	doneOnce                   sync.Once
}

// New creates an idle gate
func New(cfg Config) (*Gate, error) {
	if cfg.Navigator == nil {
		return nil, ErrNoNavigator
	}
	if cfg.Registrar == nil {
		cfg.Registrar = &push.DisabledRegistrar{}
	}
	if cfg.Hooks == nil {
		cfg.Hooks = hook.NewManager()
	}

	return &Gate{
		registrar: cfg.Registrar,
		navigator: cfg.Navigator,
		hooks:     cfg.Hooks,
		log:       logger.OrNop(cfg.Logger).With("component", "gate"),
		listeners: make(map[*session.Session]session.ListenerID),
		pending:   make(map[*session.Session]struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start registers a sync listener on every active session whose initial
// sync is still running and kicks off push registration if needed. When
// nothing is outstanding the gate finishes before Start returns.
//
// ctx is used for push registration, store verification and navigation.
func (g *Gate) Start(ctx context.Context, sessions []*session.Session) error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	if g.state != StateIdle {
		g.mu.Unlock()
		return ErrAlreadyStarted
	}

	g.ctx = ctx
	g.startedAt = time.Now()
	g.state = StateWaiting

	for _, s := range sessions {
		if s == nil || !s.IsActive() {
			continue
		}
		g.sessions = append(g.sessions, s)
		if s.IsInitialSyncComplete() {
			continue
		}

		g.listeners[s] = s.AddSyncListener(g.onSessionSyncComplete)
		// The sync may have finished between the check and the registration.
		if !s.IsInitialSyncComplete() {
			g.pending[s] = struct{}{}
		}
	}

	g.initialSyncComplete = len(g.pending) == 0
	pushRegistered := g.registrar.IsRegistered()
	g.pusherRegistrationComplete = pushRegistered

	info := hook.GateInfo{
		Sessions:       len(g.sessions),
		Pending:        len(g.pending),
		PushRegistered: pushRegistered,
		StartedAt:      g.startedAt,
	}
	g.mu.Unlock()

	g.hooks.OnGateStarted(info)

	if !pushRegistered {
		g.registrar.Register(ctx, g.onPushResult)
	}

	g.finishIfReady()
	return nil
}

func (g *Gate) onSessionSyncComplete(s *session.Session) {
	g.mu.Lock()
	if _, ok := g.pending[s]; !ok || g.state != StateWaiting {
		g.mu.Unlock()
		return
	}
	delete(g.pending, s)
	remaining := len(g.pending)
	g.initialSyncComplete = remaining == 0
	g.mu.Unlock()

	g.hooks.OnSessionSynced(s.UserID(), remaining)

	if remaining == 0 {
		g.finishIfReady()
	}
}

func (g *Gate) onPushResult(res push.Result) {
	if res.OK() {
		g.OnPushRegistered()
		return
	}
	g.OnPushRegistrationFailed(res.Err)
}

// OnPushRegistered records a successful push registration
func (g *Gate) OnPushRegistered() {
	if !g.completePush() {
		return
	}
	g.hooks.OnPushRegistered()
	g.finishIfReady()
}

// OnPushRegistrationFailed records a failed push registration. Failure still
// completes the push precondition; delivery switches to the fallback transport.
func (g *Gate) OnPushRegistrationFailed(err error) {
	if !g.completePush() {
		return
	}
	g.registrar.UseFallbackTransport(true)
	g.hooks.OnPushFallback(err)
	g.finishIfReady()
}

// completePush reports whether the call changed the push flag
func (g *Gate) completePush() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pusherRegistrationComplete || g.closed {
		return false
	}
	g.pusherRegistrationComplete = true
	return true
}

// finishIfReady navigates once both preconditions hold. Only the caller that
// moves the gate out of StateWaiting performs the navigation.
func (g *Gate) finishIfReady() {
	g.mu.Lock()
	if g.state != StateWaiting || !g.initialSyncComplete || !g.pusherRegistrationComplete {
		g.mu.Unlock()
		return
	}
	g.state = StateReady
	ctx := g.ctx
	sessions := g.sessions
	startedAt := g.startedAt
	g.mu.Unlock()

	report, err := g.verify(ctx, sessions)
	if err != nil {
		g.log.Warn("store verification interrupted", "error", err)
		g.finish(StateAborted, OutcomeAborted, err)
		return
	}
	g.hooks.OnReady(report)

	if report.IsCorrupted() {
		g.mu.Lock()
		g.state = StateReadyCorrupted
		g.mu.Unlock()

		g.log.Error("corrupted session store, logging out", "user_ids", report.Corrupted)
		err := g.navigator.Logout(ctx)
		g.finish(StateLoggedOut, OutcomeLoggedOut, err)
		g.hooks.OnLoggedOut(report, time.Since(startedAt))
		return
	}

	err = g.navigator.NavigateHome(ctx)
	g.finish(StateNavigated, OutcomeNavigated, err)
	g.hooks.OnNavigated(time.Since(startedAt))
}

// verify checks the store of every session that is still active. A store
// that cannot be read is treated as corrupted. An ended context aborts the
// check and is returned instead.
func (g *Gate) verify(ctx context.Context, sessions []*session.Session) (hook.ReadyReport, error) {
	var report hook.ReadyReport
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return hook.ReadyReport{}, err
		}
		if !s.IsActive() {
			continue
		}
		report.Sessions = append(report.Sessions, s.UserID())

		corrupted, err := s.IsStoreCorrupted(ctx)
		switch {
		case errors.Is(err, session.ErrNoAccountStore):
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return hook.ReadyReport{}, err
		case err != nil:
			g.log.Warn("failed to verify session store", "user_id", s.UserID(), "error", err)
			report.Corrupted = append(report.Corrupted, s.UserID())
		case corrupted:
			report.Corrupted = append(report.Corrupted, s.UserID())
		}
	}
	return report, nil
}

func (g *Gate) finish(state State, outcome Outcome, err error) {
	if err != nil && outcome != OutcomeAborted {
		g.log.Error("navigation failed", "outcome", outcome, "error", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = state
	g.outcome = outcome
	g.err = err
	g.closeDone()
}

// closeDone must be called with mu held
func (g *Gate) closeDone() {
	g.doneOnce.Do(func() { close(g.done) })
}

// Close detaches every listener the gate registered. A gate that has not
// finished yet never will; Wait returns ErrClosed.
func (g *Gate) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	listeners := g.listeners
	g.listeners = make(map[*session.Session]session.ListenerID)
	g.pending = make(map[*session.Session]struct{})
	state := g.state
	if state == StateIdle || state == StateWaiting {
		g.closeDone()
	}
	g.mu.Unlock()

	for s, id := range listeners {
		s.RemoveSyncListener(id)
	}

	g.hooks.OnGateClosed(state.String())
}

// Done is closed when the gate reaches a terminal state or is closed first
func (g *Gate) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the gate finishes. The returned error is the navigation
// error, ErrClosed, or the context error. OutcomeAborted comes with the error
// of the context given to Start.
func (g *Gate) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-g.done:
	case <-ctx.Done():
		return OutcomeNone, ctx.Err()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.outcome == OutcomeNone {
		return OutcomeNone, ErrClosed
	}
	return g.outcome, g.err
}

// State returns the current state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Outcome returns the terminal outcome, OutcomeNone while running
func (g *Gate) Outcome() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome
}

// InitialSyncComplete reports whether no session is pending
func (g *Gate) InitialSyncComplete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.initialSyncComplete
}

// PushRegistrationComplete reports whether push registration has finished,
// successfully or not
func (g *Gate) PushRegistrationComplete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pusherRegistrationComplete
}

// Pending returns the user IDs whose initial sync is still awaited
func (g *Gate) Pending() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids := make([]string, 0, len(g.pending))
	for s := range g.pending {
		ids = append(ids, s.UserID())
	}
	sort.Strings(ids)
	return ids
}
