package syncer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/launchgate/matrix"
	"github.com/axmq/launchgate/session"
	"github.com/axmq/launchgate/store"
)

type fakeClient struct {
	mu    sync.Mutex
	calls []matrix.SyncRequest
	errs  []error // returned in order before succeeding
	next  string
}

func (c *fakeClient) Sync(_ context.Context, req matrix.SyncRequest) (matrix.SyncResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return matrix.SyncResponse{}, err
	}
	return matrix.SyncResponse{NextBatch: c.next, JoinedRooms: 2}, nil
}

func (c *fakeClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newSession(userID string) *session.Session {
	return session.New(session.Credentials{
		UserID:        userID,
		HomeserverURL: "https://matrix.example.org",
		AccessToken:   "tok",
	}, store.NewMemoryStore[[]byte]())
}

var fastBackoff = BackoffConfig{InitialInterval: time.Millisecond, MaxInterval: 4 * time.Millisecond, Multiplier: 2}

func newSyncer(t *testing.T, cfg Config) *Syncer {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func staticClients(clients map[string]*fakeClient) ClientFactory {
	return func(creds session.Credentials) (SyncClient, error) {
		c, ok := clients[creds.UserID]
		if !ok {
			return nil, errors.New("no client")
		}
		return c, nil
	}
}

func TestSyncer_InitialSync(t *testing.T) {
	sess := newSession("@alice:example.org")
	client := &fakeClient{next: "s42"}
	s := newSyncer(t, Config{
		Clients: staticClients(map[string]*fakeClient{"@alice:example.org": client}),
		Filter:  "{}",
	})

	var notified int
	sess.AddSyncListener(func(*session.Session) { notified++ })

	require.NoError(t, s.InitialSync(context.Background(), sess))

	assert.True(t, sess.IsInitialSyncComplete())
	assert.Equal(t, "s42", sess.NextBatch())
	assert.Equal(t, 1, notified)
	assert.Equal(t, "{}", client.calls[0].Filter)
	assert.Empty(t, client.calls[0].Since)

	token, err := sess.Store().Load(context.Background(), session.KeyNextBatch)
	require.NoError(t, err)
	assert.Equal(t, "s42", string(token))
}

func TestSyncer_RetriesTransientErrors(t *testing.T) {
	sess := newSession("@alice:example.org")
	client := &fakeClient{
		next: "s1",
		errs: []error{errors.New("connection reset"), &matrix.Error{StatusCode: 502}},
	}
	s := newSyncer(t, Config{
		Clients: staticClients(map[string]*fakeClient{"@alice:example.org": client}),
		Backoff: fastBackoff,
	})

	require.NoError(t, s.InitialSync(context.Background(), sess))
	assert.Equal(t, 3, client.Calls())
	assert.True(t, sess.IsInitialSyncComplete())
}

func TestSyncer_UnknownTokenGivesUp(t *testing.T) {
	sess := newSession("@alice:example.org")
	client := &fakeClient{
		errs: []error{&matrix.Error{StatusCode: 401, ErrCode: "M_UNKNOWN_TOKEN", Message: "revoked"}},
	}
	s := newSyncer(t, Config{
		Clients: staticClients(map[string]*fakeClient{"@alice:example.org": client}),
		Backoff: fastBackoff,
	})

	err := s.InitialSync(context.Background(), sess)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.Equal(t, 1, client.Calls())
	assert.False(t, sess.IsInitialSyncComplete())
}

func TestSyncer_MaxRetries(t *testing.T) {
	sess := newSession("@alice:example.org")
	client := &fakeClient{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	backoff := fastBackoff
	backoff.MaxRetries = 2
	s := newSyncer(t, Config{
		Clients: staticClients(map[string]*fakeClient{"@alice:example.org": client}),
		Backoff: backoff,
	})

	err := s.InitialSync(context.Background(), sess)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, client.Calls())
}

func TestNew_InvalidBackoff(t *testing.T) {
	_, err := New(Config{Backoff: BackoffConfig{InitialInterval: time.Second}})
	assert.ErrorIs(t, err, ErrInvalidBackoffConfig)
}

func TestSyncer_StopsOnContext(t *testing.T) {
	sess := newSession("@alice:example.org")
	errs := make([]error, 1000)
	for i := range errs {
		errs[i] = errors.New("offline")
	}
	client := &fakeClient{errs: errs}
	s := newSyncer(t, Config{
		Clients: staticClients(map[string]*fakeClient{"@alice:example.org": client}),
		Backoff: BackoffConfig{InitialInterval: time.Hour, MaxInterval: time.Hour, Multiplier: 1},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.InitialSync(ctx, sess)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, client.Calls())
}

func TestSyncer_Run(t *testing.T) {
	alice := newSession("@alice:example.org")
	bob := newSession("@bob:example.org")
	carol := newSession("@carol:example.org")
	carol.CompleteInitialSync("old")
	dave := newSession("@dave:example.org")
	dave.SetState(session.StateLoggedOut)

	clients := map[string]*fakeClient{
		"@alice:example.org": {next: "a1"},
		"@bob:example.org":   {errs: []error{&matrix.Error{StatusCode: 401, ErrCode: "M_UNKNOWN_TOKEN"}}},
		"@carol:example.org": {next: "c2"},
		"@dave:example.org":  {next: "d1"},
	}
	s := newSyncer(t, Config{Clients: staticClients(clients), Backoff: fastBackoff})

	err := s.Run(context.Background(), []*session.Session{alice, bob, carol, dave})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.Contains(t, err.Error(), "@bob:example.org")

	assert.True(t, alice.IsInitialSyncComplete())
	assert.False(t, bob.IsInitialSyncComplete())
	assert.Equal(t, "old", carol.NextBatch())
	assert.Zero(t, clients["@carol:example.org"].Calls())
	assert.Zero(t, clients["@dave:example.org"].Calls())
}

func TestSyncer_ResumesFromStoredToken(t *testing.T) {
	var (
		mu    sync.Mutex
		since string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		since = r.URL.Query().Get("since")
		mu.Unlock()
		_, _ = w.Write([]byte(`{"next_batch":"s9","rooms":{"join":{"!r:example.org":{}}}}`))
	}))
	t.Cleanup(srv.Close)

	sess := session.New(session.Credentials{
		UserID:        "@alice:example.org",
		HomeserverURL: srv.URL,
		AccessToken:   "tok",
	}, store.NewMemoryStore[[]byte]())

	sess.CompleteInitialSync("s8")
	s := newSyncer(t, Config{})

	require.NoError(t, s.InitialSync(context.Background(), sess))
	mu.Lock()
	assert.Equal(t, "s8", since)
	mu.Unlock()
	assert.Equal(t, "s9", sess.NextBatch())
}
