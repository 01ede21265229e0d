package push

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/axmq/launchgate/matrix"
	"github.com/axmq/launchgate/pkg/logger"
	"github.com/axmq/launchgate/session"
	"github.com/axmq/launchgate/store"
)

// Registration is the persisted record of a successful pusher registration
type Registration struct {
	AppID        string    `json:"app_id" cbor:"1,keyasint"`
	PushKey      string    `json:"pushkey" cbor:"2,keyasint"`
	GatewayURL   string    `json:"gateway_url" cbor:"3,keyasint"`
	UserIDs      []string  `json:"user_ids" cbor:"4,keyasint"`
	RegisteredAt time.Time `json:"registered_at" cbor:"5,keyasint"`
}

// covers reports whether every user in userIDs is part of the registration
func (r Registration) covers(userIDs []string) bool {
	known := make(map[string]struct{}, len(r.UserIDs))
	for _, id := range r.UserIDs {
		known[id] = struct{}{}
	}
	for _, id := range userIDs {
		if _, ok := known[id]; !ok {
			return false
		}
	}
	return true
}

// SessionSource lists the sessions a pusher must be registered for
type SessionSource interface {
	ActiveSessions() []*session.Session
}

// PusherClient is the part of the Matrix API the registrar needs
type PusherClient interface {
	SetPusher(ctx context.Context, p matrix.Pusher) error
}

// ClientFactory builds a PusherClient for one session
type ClientFactory func(creds session.Credentials) (PusherClient, error)

// MatrixClients builds real Matrix clients from session credentials
func MatrixClients() ClientFactory {
	return func(creds session.Credentials) (PusherClient, error) {
		return matrix.NewClient(matrix.ClientConfig{
			HomeserverURL: creds.HomeserverURL,
			AccessToken:   creds.AccessToken,
		})
	}
}

// MatrixRegistrarConfig configures a MatrixRegistrar
type MatrixRegistrarConfig struct {
	Sessions          SessionSource
	Store             store.Store[Registration]
	Clients           ClientFactory
	AppID             string
	AppDisplayName    string
	DeviceDisplayName string
	Lang              string
	GatewayURL        string
	PushKey           string
	Logger            logger.Logger
}

// MatrixRegistrar registers one http pusher per active session. Concurrent
// Register calls share a single in-flight attempt.
type MatrixRegistrar struct {
	cfg      MatrixRegistrarConfig
	log      logger.Logger
	fallback atomic.Bool

	mu       sync.Mutex
	current  *Registration
	inflight bool
	waiters  []func(Result)
}

// NewMatrixRegistrar creates a registrar and loads any previous registration
func NewMatrixRegistrar(ctx context.Context, cfg MatrixRegistrarConfig) (*MatrixRegistrar, error) {
	if cfg.PushKey == "" {
		return nil, ErrMissingKey
	}
	if cfg.AppID == "" {
		return nil, ErrMissingApp
	}
	if cfg.Store == nil {
		cfg.Store = store.NewMemoryStore[Registration]()
	}
	if cfg.Clients == nil {
		cfg.Clients = MatrixClients()
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}

	r := &MatrixRegistrar{
		cfg: cfg,
		log: logger.OrNop(cfg.Logger).With("component", "push"),
	}

	reg, err := cfg.Store.Load(ctx, cfg.PushKey)
	switch {
	case err == nil:
		r.current = &reg
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}

	return r, nil
}

func (r *MatrixRegistrar) activeUserIDs() []string {
	sessions := r.cfg.Sessions.ActiveSessions()
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.UserID())
	}
	sort.Strings(ids)
	return ids
}

// IsRegistered reports whether the stored registration covers every active session
func (r *MatrixRegistrar) IsRegistered() bool {
	r.mu.Lock()
	current := r.current
	r.mu.Unlock()

	if current == nil {
		return false
	}
	if current.AppID != r.cfg.AppID || current.GatewayURL != r.cfg.GatewayURL {
		return false
	}
	return current.covers(r.activeUserIDs())
}

// Registration returns the last successful registration
func (r *MatrixRegistrar) Registration() (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Registration{}, false
	}
	return *r.current, true
}

// Register registers the pusher for every active session in the background
func (r *MatrixRegistrar) Register(ctx context.Context, done func(Result)) {
	r.mu.Lock()
	if done != nil {
		r.waiters = append(r.waiters, done)
	}
	if r.inflight {
		r.mu.Unlock()
		return
	}
	r.inflight = true
	r.mu.Unlock()

	go r.run(ctx)
}

func (r *MatrixRegistrar) run(ctx context.Context) {
	res := r.register(ctx)

	r.mu.Lock()
	waiters := r.waiters
	r.waiters = nil
	r.inflight = false
	r.mu.Unlock()

	for _, w := range waiters {
		w(res)
	}
}

func (r *MatrixRegistrar) register(ctx context.Context) Result {
	sessions := r.cfg.Sessions.ActiveSessions()
	if len(sessions) == 0 {
		return Failed(ErrNoSessions)
	}

	pusher := matrix.Pusher{
		PushKey:           r.cfg.PushKey,
		Kind:              "http",
		AppID:             r.cfg.AppID,
		AppDisplayName:    r.cfg.AppDisplayName,
		DeviceDisplayName: r.cfg.DeviceDisplayName,
		Lang:              r.cfg.Lang,
		Data:              matrix.PusherData{URL: r.cfg.GatewayURL, Format: "event_id_only"},
		Append:            false,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			client, err := r.cfg.Clients(s.Credentials())
			if err != nil {
				return fmt.Errorf("%s: %w", s.UserID(), err)
			}
			if err := client.SetPusher(gctx, pusher); err != nil {
				return fmt.Errorf("%s: %w", s.UserID(), err)
			}
			r.log.Debug("pusher set", "user_id", s.UserID())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return Cancelled(ctx.Err())
		}
		return Failed(err)
	}

	userIDs := make([]string, 0, len(sessions))
	for _, s := range sessions {
		userIDs = append(userIDs, s.UserID())
	}
	sort.Strings(userIDs)

	reg := Registration{
		AppID:        r.cfg.AppID,
		PushKey:      r.cfg.PushKey,
		GatewayURL:   r.cfg.GatewayURL,
		UserIDs:      userIDs,
		RegisteredAt: time.Now().UTC(),
	}
	if err := r.cfg.Store.Save(ctx, r.cfg.PushKey, reg); err != nil {
		// The homeserver side is registered; only the cache is stale.
		r.log.Warn("failed to persist registration", "error", err)
	}

	r.mu.Lock()
	r.current = &reg
	r.mu.Unlock()

	r.UseFallbackTransport(false)
	return Registered()
}

// UseFallbackTransport switches event delivery to the alternate transport
func (r *MatrixRegistrar) UseFallbackTransport(enabled bool) {
	if r.fallback.Swap(enabled) != enabled {
		r.log.Info("fallback transport changed", "enabled", enabled)
	}
}

// FallbackTransport reports whether the alternate transport is in use
func (r *MatrixRegistrar) FallbackTransport() bool {
	return r.fallback.Load()
}
