//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisAddr() string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

func setupRedisStore(t *testing.T) *RedisStore[testData] {
	t.Helper()
	s, err := NewRedisStore[testData](RedisStoreConfig{
		Addr:   getRedisAddr(),
		DB:     15,
		Prefix: "launchgate-test:",
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	ctx := context.Background()
	require.NoError(t, s.Clear(ctx))
	t.Cleanup(func() {
		_ = s.Clear(ctx)
		_ = s.Close()
	})
	return s
}

func TestRedisStore_SaveLoadDelete(t *testing.T) {
	s := setupRedisStore(t)
	ctx := context.Background()

	want := testData{ID: "1", Name: "Alice", Age: 30}
	require.NoError(t, s.Save(ctx, "alice", want))

	got, err := s.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, keys)

	require.NoError(t, s.Delete(ctx, "alice"))
	_, err = s.Load(ctx, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_KeyNamedIndex(t *testing.T) {
	s := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "index", testData{ID: "1"}))
	require.NoError(t, s.Save(ctx, "other", testData{ID: "2"}))

	got, err := s.Load(ctx, "index")
	require.NoError(t, err)
	assert.Equal(t, "1", got.ID)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"index", "other"}, keys)
	assert.NoError(t, s.Verify(ctx))
}

func TestRedisStore_Verify(t *testing.T) {
	s := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "ok", testData{ID: "1"}))
	assert.NoError(t, s.Verify(ctx))

	client := redis.NewClient(&redis.Options{Addr: getRedisAddr(), DB: 15})
	defer client.Close()
	require.NoError(t, client.Set(ctx, s.makeKey("bad"), "{not json", 0).Err())
	require.NoError(t, client.SAdd(ctx, s.index, "bad").Err())

	assert.ErrorIs(t, s.Verify(ctx), ErrCorrupted)
}

func TestNewRedisStore_InvalidAddress(t *testing.T) {
	_, err := NewRedisStore[testData](RedisStoreConfig{Addr: "invalid:99999"})
	assert.Error(t, err)
}
