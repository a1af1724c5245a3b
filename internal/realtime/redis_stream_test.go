package realtime

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/sparkfeed/internal/cache"
)

// newTestRedis connects to REDIS_HOST or skips
func newTestRedis(t *testing.T) *cache.RedisClient {
	t.Helper()
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set, skipping Redis tests")
	}
	rc, err := cache.NewRedisClient(cache.Options{
		Host:   host,
		Port:   os.Getenv("REDIS_PORT"),
		Prefix: "sparkfeed-test:" + uuid.NewString() + ":",
	})
	if err != nil {
		t.Skipf("Redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc
}

func TestRedisStreamRoundTrip(t *testing.T) {
	rc := newTestRedis(t)
	stream := NewRedisStream(rc)

	sub, err := stream.Subscribe(ctx, CollectionPosts, Filter{UserID: "u2"})
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, stream.Publish(ctx, NewInsert(textPost("p1", "u3", "skip"), "")))
	require.NoError(t, stream.Publish(ctx, NewInsert(textPost("p2", "u2", "keep"), "s:7")))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "p2", ev.ID())
		assert.Equal(t, "s:7", ev.Origin)
	case <-time.After(3 * time.Second):
		t.Fatal("no event from Redis")
	}

	require.NoError(t, sub.Close())
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestAuthorCacheOverRedisTier(t *testing.T) {
	rc := newTestRedis(t)
	require.NoError(t, rc.SetJSON(ctx, "author:u5", map[string]string{"id": "u5", "display_name": "Lin"}, time.Minute))

	cache := NewAuthorCache(nil, rc, time.Minute)
	p, err := cache.Get(ctx, "u5")
	require.NoError(t, err)
	assert.Equal(t, "Lin", p.DisplayName)
}
