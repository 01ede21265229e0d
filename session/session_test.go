package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmq/launchgate/store"
)

func testCredentials(userID string) Credentials {
	return Credentials{
		UserID:        userID,
		DeviceID:      "DEVICE",
		HomeserverURL: "https://matrix.example.org",
		AccessToken:   "syt_token",
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Credentials)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Credentials) {}},
		{name: "user id without sigil", mutate: func(c *Credentials) { c.UserID = "alice:example.org" }, wantErr: true},
		{name: "user id without server", mutate: func(c *Credentials) { c.UserID = "@alice" }, wantErr: true},
		{name: "user id with NUL", mutate: func(c *Credentials) { c.UserID = "@alice:example.org\x00x" }, wantErr: true},
		{name: "missing homeserver", mutate: func(c *Credentials) { c.HomeserverURL = "" }, wantErr: true},
		{name: "missing token", mutate: func(c *Credentials) { c.AccessToken = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCredentials("@alice:example.org")
			tt.mutate(&c)

			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	s := New(testCredentials("@alice:example.org"), store.NewMemoryStore[[]byte]())

	require.NotNil(t, s)
	assert.Equal(t, "@alice:example.org", s.UserID())
	assert.Equal(t, StateActive, s.State())
	assert.True(t, s.IsActive())
	assert.False(t, s.IsInitialSyncComplete())
	assert.Zero(t, s.ListenerCount())
}

func TestSession_CompleteInitialSync_NotifiesOnce(t *testing.T) {
	s := New(testCredentials("@alice:example.org"), store.NewMemoryStore[[]byte]())

	calls := 0
	s.AddSyncListener(func(got *Session) {
		assert.Same(t, s, got)
		calls++
	})

	s.CompleteInitialSync("s1")
	s.CompleteInitialSync("s2")

	assert.Equal(t, 1, calls)
	assert.True(t, s.IsInitialSyncComplete())
	assert.Equal(t, "s2", s.NextBatch())
}

func TestSession_RemoveSyncListener(t *testing.T) {
	s := New(testCredentials("@alice:example.org"), nil)

	called := false
	id := s.AddSyncListener(func(*Session) { called = true })
	assert.Equal(t, 1, s.ListenerCount())

	assert.True(t, s.RemoveSyncListener(id))
	assert.False(t, s.RemoveSyncListener(id))
	assert.Zero(t, s.ListenerCount())

	s.CompleteInitialSync("s1")
	assert.False(t, called)
}

func TestSession_RemoveListenerDuringDispatch(t *testing.T) {
	s := New(testCredentials("@alice:example.org"), nil)

	var ids []ListenerID
	calls := 0
	for i := 0; i < 3; i++ {
		ids = append(ids, s.AddSyncListener(func(*Session) {
			calls++
			for _, id := range ids {
				s.RemoveSyncListener(id)
			}
		}))
	}

	require.NotPanics(t, func() { s.CompleteInitialSync("s1") })
	assert.Equal(t, 3, calls)
	assert.Zero(t, s.ListenerCount())
}

func TestSession_ConcurrentListeners(t *testing.T) {
	s := New(testCredentials("@alice:example.org"), nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.AddSyncListener(func(*Session) {})
			if id%2 == 0 {
				s.RemoveSyncListener(id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, s.ListenerCount())
}

func TestSession_IsStoreCorrupted(t *testing.T) {
	ctx := context.Background()
	account := store.NewMemoryStore[[]byte]()
	s := New(testCredentials("@alice:example.org"), account)

	corrupted, err := s.IsStoreCorrupted(ctx)
	require.NoError(t, err)
	assert.False(t, corrupted)

	account.MarkCorrupted(KeyNextBatch)
	corrupted, err = s.IsStoreCorrupted(ctx)
	require.NoError(t, err)
	assert.True(t, corrupted)

	_, err = New(testCredentials("@bob:example.org"), nil).IsStoreCorrupted(ctx)
	assert.ErrorIs(t, err, ErrNoAccountStore)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "inactive", StateInactive.String())
	assert.Equal(t, "active", StateActive.String())
	assert.Equal(t, "logged_out", StateLoggedOut.String())
	assert.Equal(t, "unknown", State(42).String())
}
