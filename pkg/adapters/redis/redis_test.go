package redis_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/botfactory/pkg/adapters/redis"
	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := setup(t)
	ports.RunStateStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Minute), redis.WithPrefix("t:"))
	ctx := context.Background()
	key := domain.SessionKey{BotID: "b", UserID: "u"}

	require.NoError(t, store.Save(ctx, key, domain.NewWizardState("/book"), 0))
	assert.True(t, mr.Exists("t:state:b:u"))
	assert.Equal(t, time.Minute, mr.TTL("t:state:b:u"))

	mr.FastForward(time.Minute + time.Second)
	_, err := store.Load(ctx, key)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)

	require.NoError(t, store.Save(ctx, key, domain.NewWizardState("/book"), 5*time.Second))
	assert.Equal(t, 5*time.Second, mr.TTL("t:state:b:u"))
}

func TestRedisStore_BackendDown(t *testing.T) {
	mr, client := setup(t)
	store := redis.NewFromClient(client)
	mr.Close()

	_, err := store.Load(context.Background(), domain.SessionKey{BotID: "b", UserID: "u"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrStateNotFound)
}

func TestLocker_SerializesHolders(t *testing.T) {
	_, client := setup(t)
	locker := redis.NewLocker(client, "t:")
	ctx := context.Background()

	var mu sync.Mutex
	inside := 0
	maxInside := 0
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "b:u", 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxInside)
}

func TestLocker_ContextCancel(t *testing.T) {
	_, client := setup(t)
	locker := redis.NewLocker(client, "t:")

	unlock, err := locker.Lock(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	defer func() { _ = unlock(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockAcquire)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCounter_Window(t *testing.T) {
	mr, client := setup(t)
	c := redis.NewCounter(client)
	ctx := context.Background()

	for want := int64(1); want <= 4; want++ {
		n, err := c.Incr(ctx, "rl:b:u", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	mr.FastForward(20 * time.Second)
	ttl, err := c.TTL(ctx, "rl:b:u")
	require.NoError(t, err)
	assert.Equal(t, 40*time.Second, ttl, "expiry is armed once per window")

	mr.FastForward(41 * time.Second)
	n, err := c.Incr(ctx, "rl:b:u", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ttl, err = c.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, ttl)
}

func TestSlidingWindow(t *testing.T) {
	_, client := setup(t)
	w := redis.NewSlidingWindow(client, "t:")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := w.Allow(ctx, "b:u", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := w.Allow(ctx, "b:u", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.Allow(ctx, "b:other", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBudget_ResetsAtLocalMidnight(t *testing.T) {
	mr, client := setup(t)
	loc := time.FixedZone("BRT", -3*3600)
	b := redis.NewBudget(client, "t:", loc)
	ctx := context.Background()
	now := time.Date(2024, 1, 15, 22, 0, 0, 0, loc)
	mr.SetTime(now)

	require.NoError(t, b.Add(ctx, "bot", 120, now))
	require.NoError(t, b.Add(ctx, "bot", 30, now.Add(time.Hour)))

	used, err := b.Used(ctx, "bot", now)
	require.NoError(t, err)
	assert.Equal(t, int64(150), used)

	tomorrow := now.Add(3 * time.Hour)
	used, err = b.Used(ctx, "bot", tomorrow)
	require.NoError(t, err)
	assert.Zero(t, used)

	assert.True(t, mr.Exists("t:budget:bot:2024-01-15"))
}

func TestCache(t *testing.T) {
	mr, client := setup(t)
	c := redis.NewCache(client, "t:")
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	data, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), data)

	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBroadcaster_Schedule(t *testing.T) {
	mr, client := setup(t)
	b := redis.NewBroadcaster(client, "t:")

	id, err := b.Schedule(context.Background(), ports.Campaign{BotID: "bot", CreatedBy: "u1", Message: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	items, err := mr.List(b.QueueKey())
	require.NoError(t, err)
	require.Len(t, items, 1)

	var got ports.Campaign
	require.NoError(t, json.Unmarshal([]byte(items[0]), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "hi", got.Message)
	assert.False(t, got.CreatedAt.IsZero())
}
