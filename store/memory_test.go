package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testData struct {
	ID   string
	Name string
	Age  int
}

func TestMemoryStore_SaveLoad(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   testData
		wantErr error
	}{
		{
			name:  "save new value",
			key:   "@alice:example.org",
			value: testData{ID: "1", Name: "Alice", Age: 30},
		},
		{
			name:  "save with empty key",
			key:   "",
			value: testData{ID: "2", Name: "Bob", Age: 25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore[testData]()
			defer s.Close()

			ctx := context.Background()
			require.NoError(t, s.Save(ctx, tt.key, tt.value))

			got, err := s.Load(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	s := NewMemoryStore[testData]()
	defer s.Close()

	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore[testData]()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, "k", testData{}), context.Canceled)
	_, err := s.Load(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ListCountDelete(t *testing.T) {
	s := NewMemoryStore[testData]()
	defer s.Close()
	ctx := context.Background()

	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, s.Save(ctx, k, testData{ID: k}))
	}

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, s.Delete(ctx, "b"))
	ok, err := s.Exists(ctx, "b")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Clear(ctx))
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStore_Verify(t *testing.T) {
	s := NewMemoryStore[testData]()
	defer s.Close()
	ctx := context.Background()

	assert.NoError(t, s.Verify(ctx))

	s.MarkCorrupted("rooms")
	err := s.Verify(ctx)
	assert.ErrorIs(t, err, ErrCorrupted)
	assert.Contains(t, err.Error(), "rooms")

	corrupted, err := IsCorrupted(ctx, s)
	require.NoError(t, err)
	assert.True(t, corrupted)

	require.NoError(t, s.Clear(ctx))
	assert.NoError(t, s.Verify(ctx))
}

func TestMemoryStore_Close(t *testing.T) {
	s := NewMemoryStore[testData]()
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrStoreClosed)

	ctx := context.Background()
	assert.ErrorIs(t, s.Save(ctx, "k", testData{}), ErrStoreClosed)
	assert.ErrorIs(t, s.Verify(ctx), ErrStoreClosed)
}

func TestIsCorrupted_NonVerifier(t *testing.T) {
	corrupted, err := IsCorrupted(context.Background(), struct{}{})
	assert.NoError(t, err)
	assert.False(t, corrupted)
}

func TestIsCorrupted_OtherError(t *testing.T) {
	s := NewMemoryStore[testData]()
	require.NoError(t, s.Close())

	corrupted, err := IsCorrupted(context.Background(), s)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.False(t, corrupted)
}
