package nav

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/axmq/launchgate/matrix"
	"github.com/axmq/launchgate/pkg/logger"
	"github.com/axmq/launchgate/session"
)

// Navigator performs the gate's terminal transition. Both calls end the
// launch screen.
type Navigator interface {
	NavigateHome(ctx context.Context) error
	Logout(ctx context.Context) error
}

// Destination is where the client goes after launch
type Destination byte

const (
	DestinationNone Destination = iota
	DestinationHome
	DestinationLogin
)

func (d Destination) String() string {
	switch d {
	case DestinationHome:
		return "home"
	case DestinationLogin:
		return "login"
	default:
		return "none"
	}
}

// Arrival is handed to the destination through the handoff registry
type Arrival struct {
	Destination Destination
	UserIDs     []string
	At          time.Time
}

// Navigation announces a transition; the arrival is fetched with Take(Token)
type Navigation struct {
	Destination Destination
	Token       string
}

// SessionDirectory is the part of the session registry the coordinator needs
type SessionDirectory interface {
	Sessions() []*session.Session
	Logout(ctx context.Context, userID string) error
}

// LogoutClient invalidates an access token on the homeserver
type LogoutClient interface {
	Logout(ctx context.Context) error
}

// LogoutClientFactory builds a LogoutClient for one session
type LogoutClientFactory func(creds session.Credentials) (LogoutClient, error)

// MatrixLogoutClients builds real Matrix clients from session credentials
func MatrixLogoutClients() LogoutClientFactory {
	return func(creds session.Credentials) (LogoutClient, error) {
		return matrix.NewClient(matrix.ClientConfig{
			HomeserverURL: creds.HomeserverURL,
			AccessToken:   creds.AccessToken,
		})
	}
}

// CoordinatorConfig configures a Coordinator
type CoordinatorConfig struct {
	Sessions SessionDirectory
	Clients  LogoutClientFactory // nil skips server-side logout
	Handoff  *Handoff[Arrival]
	Logger   logger.Logger
}

// Coordinator is the Navigator used by the launch flow
type Coordinator struct {
	cfg     CoordinatorConfig
	log     logger.Logger
	handoff *Handoff[Arrival]
	changes chan Navigation

	mu      sync.Mutex
	current Destination
}

// NewCoordinator creates a coordinator
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	h := cfg.Handoff
	if h == nil {
		h = NewHandoff[Arrival](0)
	}
	return &Coordinator{
		cfg:     cfg,
		log:     logger.OrNop(cfg.Logger).With("component", "nav"),
		handoff: h,
		changes: make(chan Navigation, 4),
	}
}

// Changes delivers every navigation performed by the coordinator
func (c *Coordinator) Changes() <-chan Navigation {
	return c.changes
}

// Current returns the last destination
func (c *Coordinator) Current() Destination {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Take fetches the arrival published under token
func (c *Coordinator) Take(token string) (Arrival, bool) {
	return c.handoff.Take(token)
}

func (c *Coordinator) userIDs() []string {
	sessions := c.cfg.Sessions.Sessions()
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.UserID())
	}
	return ids
}

func (c *Coordinator) publish(dest Destination, userIDs []string) {
	c.mu.Lock()
	c.current = dest
	c.mu.Unlock()

	token := c.handoff.Put(Arrival{Destination: dest, UserIDs: userIDs, At: time.Now()})
	select {
	case c.changes <- Navigation{Destination: dest, Token: token}:
	default:
		c.log.Warn("navigation dropped, nobody listening", "destination", dest)
	}
}

// NavigateHome opens the home destination for the signed-in sessions
func (c *Coordinator) NavigateHome(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.publish(DestinationHome, c.userIDs())
	return nil
}

// Logout signs every session out. Server-side logout is best effort; local
// state is always discarded.
func (c *Coordinator) Logout(ctx context.Context) error {
	sessions := c.cfg.Sessions.Sessions()
	userIDs := make([]string, 0, len(sessions))

	var errs []error
	for _, s := range sessions {
		userIDs = append(userIDs, s.UserID())

		if c.cfg.Clients != nil {
			if err := c.serverLogout(ctx, s); err != nil {
				c.log.Warn("server logout failed", "user_id", s.UserID(), "error", err)
			}
		}

		if err := c.cfg.Sessions.Logout(ctx, s.UserID()); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", s.UserID(), err))
		}
	}

	c.publish(DestinationLogin, userIDs)
	return errors.Join(errs...)
}

func (c *Coordinator) serverLogout(ctx context.Context, s *session.Session) error {
	client, err := c.cfg.Clients(s.Credentials())
	if err != nil {
		return err
	}
	err = client.Logout(ctx)
	if matrix.IsUnknownToken(err) {
		return nil
	}
	return err
}
