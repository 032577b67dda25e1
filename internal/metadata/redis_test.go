package metadata

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisStore(t *testing.T) *RedisStore {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store := NewRedisStoreWithClient(client, "test")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return newMiniredisStore(t)
	})
}

func TestRedisStore_Keys(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store := NewRedisStoreWithClient(client, "fc")
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, newTestJob("job-1", testTime())))

	assert.True(t, server.Exists("fc:job:job-1"))
	members, err := server.ZMembers("fc:jobs")
	require.NoError(t, err)
	assert.Equal(t, []string{"job-1"}, members)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url", "fc")
	assert.Error(t, err)
}
