package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/favbox/chainkit/store"
	"github.com/favbox/chainkit/store/redis"
	"github.com/favbox/chainkit/store/storetest"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	s := redis.NewFromClient(client, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Contract(t *testing.T) {
	s, _ := newStore(t)
	storetest.RunContract(t, s)
}

func TestRedisStore_Layout(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, redis.WithPrefix("test:"))

	rev, err := s.Put(ctx, "p", "text")
	require.NoError(t, err)

	assert.True(t, mr.Exists("test:tree:p"))
	assert.Equal(t, "text", mr.HGet("test:tree:p", "text"))
	members, err := mr.ZMembers("test:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, members)

	got, err := s.Revision(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, rev, got)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newStore(t, redis.WithTTL(time.Minute))

	_, err := s.Put(ctx, "short", "text")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL(redis.DefaultPrefix+"tree:short"))

	mr.FastForward(2 * time.Minute)

	_, err = s.Get(ctx, "short")
	assert.ErrorIs(t, err, store.ErrNotFound)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	members, err := mr.ZMembers(redis.DefaultPrefix + "index")
	if err == nil {
		assert.Empty(t, members)
	}
}
