package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/botfactory/pkg/adapters/memory"
	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowStore simulates latency to provoke race conditions if locking is missing.
type slowStore struct {
	*memory.Store
}

func (s slowStore) Load(ctx context.Context, key domain.SessionKey) (*domain.WizardState, error) {
	time.Sleep(2 * time.Millisecond)
	return s.Store.Load(ctx, key)
}

func TestManager_SerializesReadModifyWrite(t *testing.T) {
	store := slowStore{memory.NewStore()}
	mgr := NewManager(store)
	ctx := context.Background()
	key := domain.SessionKey{BotID: "b", UserID: "u"}
	require.NoError(t, store.Save(ctx, key, domain.NewWizardState("/count"), 0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, key, func(ctx context.Context) error {
				state, err := mgr.Store().Load(ctx, key)
				if err != nil {
					return err
				}
				state.StepIndex++
				return mgr.Store().Save(ctx, key, state, mgr.TTL())
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := mgr.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 20, state.StepIndex)
}

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		key := domain.SessionKey{BotID: "b", UserID: fmt.Sprintf("u-%d", i)}
		_, _ = mgr.Load(ctx, key)
		_ = mgr.Delete(ctx, key)
	}
	assert.Empty(t, mgr.locks, "locks must be released when idle")
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked int
	err      error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.locked = append(f.locked, key)
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocked++
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	mgr := NewManager(memory.NewStore(), WithLocker(locker), WithLockTTL(time.Second))
	key := domain.SessionKey{BotID: "b", UserID: "u"}

	called := false
	require.NoError(t, mgr.WithLock(context.Background(), key, func(context.Context) error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.Equal(t, []string{"b:u"}, locker.locked)
	assert.Equal(t, 1, locker.unlocked)

	locker.err = errors.New("redis down")
	err := mgr.WithLock(context.Background(), key, func(context.Context) error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.Error(t, err)
}
