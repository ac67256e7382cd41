package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedResponse struct {
	SQL  string                   `json:"sql"`
	Rows []map[string]interface{} `json:"rows"`
}

func setupCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, ttl), mr
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := setupCache(t, time.Minute)
	ctx := context.Background()

	in := cachedResponse{
		SQL:  "SELECT * FROM hr_data LIMIT 100;",
		Rows: []map[string]interface{}{{"department": "HR"}},
	}
	require.NoError(t, c.Set(ctx, "k", in))

	var out cachedResponse
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in.SQL, out.SQL)
	assert.Equal(t, "HR", out.Rows[0]["department"])
}

func TestCache_Miss(t *testing.T) {
	c, _ := setupCache(t, time.Minute)

	var out cachedResponse
	hit, err := c.Get(context.Background(), "missing", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_Expiry(t *testing.T) {
	c, mr := setupCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", cachedResponse{SQL: "x"}))
	mr.FastForward(2 * time.Minute)

	var out cachedResponse
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_CorruptEntryIsDropped(t *testing.T) {
	c, mr := setupCache(t, time.Minute)
	require.NoError(t, mr.Set("k", "{not json"))

	var out cachedResponse
	hit, err := c.Get(context.Background(), "k", &out)
	assert.Error(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("k"))
}

func TestCache_ZeroTTLDisablesCaching(t *testing.T) {
	c, mr := setupCache(t, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", cachedResponse{SQL: "x"}))
	assert.False(t, mr.Exists("k"))

	var out cachedResponse
	hit, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCache_NilIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	assert.NoError(t, c.Set(ctx, "k", "v"))
	hit, err := c.Get(ctx, "k", new(string))
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.NoError(t, c.Delete(ctx, "k"))
}

func TestCache_RedisDown(t *testing.T) {
	c, mr := setupCache(t, time.Minute)
	mr.Close()

	var out cachedResponse
	hit, err := c.Get(context.Background(), "k", &out)
	assert.Error(t, err)
	assert.False(t, hit)
	assert.Error(t, c.Ping(context.Background()))
}

func TestResultKey(t *testing.T) {
	sql := "SELECT * FROM hr_data LIMIT 100;"

	a := ResultKey("aaaaaaaaaaaaaaaaaaaaaaaa", sql)
	b := ResultKey("bbbbbbbbbbbbbbbbbbbbbbbb", sql)

	assert.NotEqual(t, a, b, "a new dataset version must not share cache entries")
	assert.Equal(t, a, ResultKey("aaaaaaaaaaaaaaaaaaaaaaaa", sql))
	assert.NotEqual(t, a, ResultKey("aaaaaaaaaaaaaaaaaaaaaaaa", "SELECT 1;"))
	assert.Contains(t, a, "hrbot:result:aaaaaaaaaaaaaaaa:")
}
