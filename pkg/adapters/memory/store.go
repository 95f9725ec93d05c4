package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/botfactory/pkg/domain"
)

type storedState struct {
	state   *domain.WizardState
	expires time.Time
}

// Store implements ports.StateStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.SessionKey]storedState
	mu   sync.RWMutex
	now  func() time.Time
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.SessionKey]storedState),
		now:  time.Now,
	}
}

// Save persists a copy of the state. A non-positive ttl never expires.
func (s *Store) Save(ctx context.Context, key domain.SessionKey, state *domain.WizardState, ttl time.Duration) error {
	entry := storedState{state: state.Clone()}
	if ttl > 0 {
		entry.expires = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry
	return nil
}

// Load retrieves a copy of the state so callers can't mutate the store by pointer.
func (s *Store) Load(ctx context.Context, key domain.SessionKey) (*domain.WizardState, error) {
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrStateNotFound
	}
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		_ = s.Delete(ctx, key)
		return nil, domain.ErrStateNotFound
	}
	return entry.state.Clone(), nil
}

// Delete removes the state.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Len returns the number of stored states, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
