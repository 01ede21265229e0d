package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/axmq/launchgate/matrix"
	"github.com/axmq/launchgate/pkg/logger"
	"github.com/axmq/launchgate/session"
)

const DefaultConcurrency = 4

// ErrTokenRevoked is returned for sessions whose access token the homeserver rejected
var ErrTokenRevoked = errors.New("access token revoked")

// SyncClient is the part of the Matrix API the syncer needs
type SyncClient interface {
	Sync(ctx context.Context, req matrix.SyncRequest) (matrix.SyncResponse, error)
}

// ClientFactory builds a SyncClient for one session
type ClientFactory func(creds session.Credentials) (SyncClient, error)

// MatrixClients builds real Matrix clients from session credentials
func MatrixClients() ClientFactory {
	return func(creds session.Credentials) (SyncClient, error) {
		return matrix.NewClient(matrix.ClientConfig{
			HomeserverURL: creds.HomeserverURL,
			AccessToken:   creds.AccessToken,
		})
	}
}

// Config configures a Syncer
type Config struct {
	Clients     ClientFactory
	Filter      string
	Backoff     BackoffConfig
	Concurrency int // sessions synced at once
	Logger      logger.Logger
}

// Syncer performs the initial sync of sessions
type Syncer struct {
	cfg Config
	log logger.Logger
}

// New creates a Syncer. A zero Backoff uses DefaultBackoffConfig.
func New(cfg Config) (*Syncer, error) {
	if cfg.Clients == nil {
		cfg.Clients = MatrixClients()
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = DefaultBackoffConfig()
	}
	if err := cfg.Backoff.Validate(); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Syncer{
		cfg: cfg,
		log: logger.OrNop(cfg.Logger).With("component", "syncer"),
	}, nil
}

// Run syncs every active session whose initial sync is not complete yet.
// Transient failures are retried with backoff; a session whose token was
// revoked is given up on. Run returns the errors of the sessions that never
// completed.
func (s *Syncer) Run(ctx context.Context, sessions []*session.Session) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, sess := range sessions {
		if !sess.IsActive() || sess.IsInitialSyncComplete() {
			continue
		}
		g.Go(func() error {
			if err := s.InitialSync(ctx, sess); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", sess.UserID(), err))
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errors.Join(errs...)
}

// InitialSync runs /sync for one session until it succeeds, persists the
// sync token and marks the initial sync complete.
func (s *Syncer) InitialSync(ctx context.Context, sess *session.Session) error {
	client, err := s.cfg.Clients(sess.Credentials())
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	backoff, err := NewBackoff(s.cfg.Backoff)
	if err != nil {
		return err
	}

	log := s.log.With("user_id", sess.UserID())
	req := matrix.SyncRequest{
		Since:  sess.NextBatch(),
		Filter: s.cfg.Filter,
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		resp, err := client.Sync(ctx, req)
		if err == nil {
			log.Info("initial sync complete",
				"joined_rooms", resp.JoinedRooms,
				"invited_rooms", resp.InvitedRooms,
				"attempt", attempt,
				"took", time.Since(start))
			s.persist(ctx, log, sess, resp.NextBatch)
			sess.CompleteInitialSync(resp.NextBatch)
			return nil
		}

		if matrix.IsUnknownToken(err) {
			log.Error("homeserver rejected access token", "error", err)
			return fmt.Errorf("%w: %v", ErrTokenRevoked, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay, ok := backoff.Next()
		if !ok {
			log.Error("sync failed, giving up", "error", err, "attempt", attempt)
			return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, err)
		}
		log.Warn("sync failed, retrying", "error", err, "attempt", attempt, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// persist stores the sync token. A failed write only costs a full sync on
// the next launch.
func (s *Syncer) persist(ctx context.Context, log logger.Logger, sess *session.Session, nextBatch string) {
	st := sess.Store()
	if st == nil {
		return
	}
	if err := st.Save(ctx, session.KeyNextBatch, []byte(nextBatch)); err != nil {
		log.Warn("failed to persist sync token", "error", err)
	}
}
