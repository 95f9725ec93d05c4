package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock obtained from a DistributedLocker.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes wizard turns of the same (bot, user) across replicas.
type DistributedLocker interface {
	// Lock blocks until the lock for key ("bot:user") is held or ctx is done.
	// The lock expires on its own after ttl if the holder never releases it.
	// The returned UnlockFunc MUST be called.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
