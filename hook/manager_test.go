package hook

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testHook struct {
	*Base
	events     map[Event]bool
	mu         sync.Mutex
	callCounts map[string]int
	stopCalled int
	lastReport ReadyReport
}

func newTestHook(id string, events ...Event) *testHook {
	h := &testHook{
		Base:       &Base{id: id},
		events:     make(map[Event]bool),
		callCounts: make(map[string]int),
	}
	for _, e := range events {
		h.events[e] = true
	}
	return h
}

func (h *testHook) Provides(event Event) bool {
	return h.events[event]
}

func (h *testHook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopCalled++
	return nil
}

func (h *testHook) incrementCall(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callCounts[name]++
}

func (h *testHook) getCallCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.callCounts[name]
}

func (h *testHook) OnGateStarted(GateInfo) error {
	h.incrementCall("OnGateStarted")
	return nil
}

func (h *testHook) OnSessionSynced(string, int) error {
	h.incrementCall("OnSessionSynced")
	return errors.New("ignored")
}

func (h *testHook) OnReady(report ReadyReport) error {
	h.incrementCall("OnReady")
	h.mu.Lock()
	h.lastReport = report
	h.mu.Unlock()
	return nil
}

func (h *testHook) OnNavigated(time.Duration) error {
	h.incrementCall("OnNavigated")
	return nil
}

func TestManager_AddRemove(t *testing.T) {
	tests := []struct {
		name    string
		hook    Hook
		wantErr error
	}{
		{name: "add valid hook", hook: newTestHook("a")},
		{name: "add nil hook", hook: nil, wantErr: ErrEmptyHookID},
		{name: "add hook with empty id", hook: newTestHook(""), wantErr: ErrEmptyHookID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			err := m.Add(tt.hook)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, m.Count())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, m.Count())
		})
	}
}

func TestManager_DuplicateAndIndex(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add(newTestHook("a")))
	require.NoError(t, m.Add(newTestHook("b")))
	require.NoError(t, m.Add(newTestHook("c")))

	assert.ErrorIs(t, m.Add(newTestHook("b")), ErrHookAlreadyExists)

	require.NoError(t, m.Remove("a"))
	assert.ErrorIs(t, m.Remove("a"), ErrHookNotFound)

	h, ok := m.Get("c")
	require.True(t, ok)
	assert.Equal(t, "c", h.ID())

	ids := []string{}
	for _, h := range m.List() {
		ids = append(ids, h.ID())
	}
	assert.Equal(t, []string{"b", "c"}, ids)

	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestManager_Clear(t *testing.T) {
	m := NewManager()
	a := newTestHook("a")
	require.NoError(t, m.Add(a))

	m.Clear()

	assert.Zero(t, m.Count())
	assert.Equal(t, 1, a.stopCalled)
	assert.NoError(t, m.Add(newTestHook("a")))
}

func TestManager_DispatchOnlyProvidedEvents(t *testing.T) {
	m := NewManager()
	started := newTestHook("started", OnGateStarted, OnSessionSynced)
	ready := newTestHook("ready", OnReady, OnNavigated)
	require.NoError(t, m.Add(started))
	require.NoError(t, m.Add(ready))

	m.OnGateStarted(GateInfo{Sessions: 2, Pending: 2})
	m.OnSessionSynced("@alice:example.org", 1)
	m.OnReady(ReadyReport{Sessions: []string{"@alice:example.org"}, Corrupted: []string{"@alice:example.org"}})
	m.OnNavigated(time.Second)
	m.OnPushRegistered()
	m.OnPushFallback(errors.New("boom"))
	m.OnLoggedOut(ReadyReport{}, time.Second)
	m.OnGateClosed("navigated")

	assert.Equal(t, 1, started.getCallCount("OnGateStarted"))
	assert.Equal(t, 1, started.getCallCount("OnSessionSynced"))
	assert.Zero(t, started.getCallCount("OnReady"))
	assert.Equal(t, 1, ready.getCallCount("OnReady"))
	assert.Equal(t, 1, ready.getCallCount("OnNavigated"))
	assert.True(t, ready.lastReport.IsCorrupted())
}

func TestManager_ConcurrentAddAndDispatch(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = m.Add(newTestHook(string(rune('a'+i)), OnGateStarted))
		}(i)
		go func() {
			defer wg.Done()
			m.OnGateStarted(GateInfo{})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, m.Count())
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "OnGateStarted", OnGateStarted.String())
	assert.Equal(t, "OnGateClosed", OnGateClosed.String())
	assert.Equal(t, "Unknown", Event(200).String())
}
