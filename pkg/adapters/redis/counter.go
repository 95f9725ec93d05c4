package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

// incrScript increments a counter and arms its expiry only on the first hit of the window.
var incrScript = backend.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// Counter implements ports.Counter. Keys are used as given.
type Counter struct {
	client *backend.Client
}

// NewCounter creates a fixed-window counter store.
func NewCounter(client *backend.Client) *Counter {
	return &Counter{client: client}
}

// Incr implements ports.Counter.
func (c *Counter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	n, err := incrScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return n, nil
}

// TTL implements ports.Counter.
func (c *Counter) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ttl %s: %w", key, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// slidingScript trims hits older than the window, then records one more only if it fits.
var slidingScript = backend.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
if redis.call("ZCARD", KEYS[1]) >= limit then
	return 0
end
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], window)
return 1
`)

// SlidingWindow implements ports.WindowLimiter with a sorted set of hit timestamps.
type SlidingWindow struct {
	client *backend.Client
	prefix string
	now    func() time.Time
}

// NewSlidingWindow creates a limiter writing under prefix.
func NewSlidingWindow(client *backend.Client, prefix string) *SlidingWindow {
	return &SlidingWindow{client: client, prefix: prefix, now: time.Now}
}

// Allow implements ports.WindowLimiter.
func (w *SlidingWindow) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := w.now().UnixMilli()
	res, err := slidingScript.Run(ctx, w.client, []string{w.prefix + "llm_rl:" + key},
		now, window.Milliseconds(), limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString()).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window %s: %w", key, err)
	}
	return res == 1, nil
}

// Budget implements ports.TokenBudget with one counter per bot and local day.
type Budget struct {
	client   *backend.Client
	prefix   string
	location *time.Location
}

// NewBudget creates a budget whose days start at midnight in loc (UTC when nil).
func NewBudget(client *backend.Client, prefix string, loc *time.Location) *Budget {
	if loc == nil {
		loc = time.UTC
	}
	return &Budget{client: client, prefix: prefix, location: loc}
}

func (b *Budget) key(botID string, now time.Time) string {
	return b.prefix + "budget:" + botID + ":" + now.In(b.location).Format(time.DateOnly)
}

// Used implements ports.TokenBudget.
func (b *Budget) Used(ctx context.Context, botID string, now time.Time) (int64, error) {
	n, err := b.client.Get(ctx, b.key(botID, now)).Int64()
	if errors.Is(err, backend.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget %s: %w", botID, err)
	}
	return n, nil
}

// Add implements ports.TokenBudget. The counter expires at the next local midnight.
func (b *Budget) Add(ctx context.Context, botID string, tokens int64, now time.Time) error {
	key := b.key(botID, now)
	local := now.In(b.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, b.location)

	_, err := b.client.TxPipelined(ctx, func(p backend.Pipeliner) error {
		p.IncrBy(ctx, key, tokens)
		p.ExpireAt(ctx, key, midnight)
		return nil
	})
	if err != nil {
		return fmt.Errorf("budget add %s: %w", botID, err)
	}
	return nil
}

// Cache implements ports.ResponseCache.
type Cache struct {
	client *backend.Client
	prefix string
}

// NewCache creates a response cache writing under prefix.
func NewCache(client *backend.Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Get implements ports.ResponseCache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+"llm_cache:"+key).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return data, true, nil
}

// Set implements ports.ResponseCache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+"llm_cache:"+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
