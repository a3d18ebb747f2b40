package redis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dark4shadow/soft-animal-platform/internal/testutil"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestKVStore_SetAllAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewKVStore(client, "test-scope")
	ctx := context.Background()

	err := store.SetAll(ctx, map[string][]byte{
		"token": []byte("tok-1"),
		"user":  []byte(`{"id":"1"}`),
	})
	require.NoError(t, err)

	v, ok, err := store.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "tok-1", string(v))

	// Keys are namespaced by scope.
	raw, err := client.Get(ctx, "test-scope:user").Result()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1"}`, raw)
}

func TestKVStore_GetMissing(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewKVStore(client, "test-scope")

	v, ok, err := store.Get(context.Background(), "token")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestKVStore_DeleteAll(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store := NewKVStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.SetAll(ctx, map[string][]byte{"token": []byte("t"), "user": []byte("u")}))
	require.NoError(t, store.DeleteAll(ctx, "token", "user", "never-set"))

	for _, k := range []string{"token", "user"} {
		_, ok, err := store.Get(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}

	n, err := client.Exists(ctx, "soft-animal:token").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestKVStore_ScopesAreIsolated(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	a := NewKVStore(client, "a")
	b := NewKVStore(client, "b")

	require.NoError(t, a.SetAll(ctx, map[string][]byte{"token": []byte("ta")}))

	_, ok, err := b.Get(ctx, "token")
	require.NoError(t, err)
	assert.False(t, ok)
}
