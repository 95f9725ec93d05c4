package ports

import (
	"context"
	"time"
)

// Counter is a fixed-window counter store used by the rate-limit policy.
type Counter interface {
	// Incr atomically increments key and, only on the first increment of the
	// window, sets its expiry to window. It returns the post-increment value.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// TTL returns the remaining lifetime of key (0 if missing or persistent).
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// WindowLimiter is a sliding-window limiter used for LLM requests per user.
type WindowLimiter interface {
	// Allow checks whether one more hit fits in the window and, only if so, records it.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// TokenBudget tracks daily LLM token usage per bot.
type TokenBudget interface {
	// Used returns the tokens consumed by botID on the day containing now.
	Used(ctx context.Context, botID string, now time.Time) (int64, error)

	// Add increments the usage of the day containing now. The counter resets at local midnight.
	Add(ctx context.Context, botID string, tokens int64, now time.Time) error
}

// ResponseCache caches serialized LLM responses.
type ResponseCache interface {
	// Get returns the cached bytes and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
