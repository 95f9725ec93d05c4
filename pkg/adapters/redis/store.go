// Package redis provides the Redis-backed adapters of the runtime: wizard state,
// distributed locks, rate-limit counters, the LLM sliding window, token budget and
// response cache, and the broadcast hand-off queue.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/botfactory/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "botfactory:"

// DefaultStateTTL is the lifetime of an idle wizard.
const DefaultStateTTL = 24 * time.Hour

// Store implements ports.StateStore using Redis strings holding JSON.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration used when Save is called with ttl 0.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Store connected to addr.
func New(addr, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a Store over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    DefaultStateTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client exposes the underlying client so sibling adapters can share the pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(k domain.SessionKey) string {
	return s.prefix + "state:" + k.String()
}

// Save implements ports.StateStore.
func (s *Store) Save(ctx context.Context, key domain.SessionKey, state *domain.WizardState, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state to redis: %w", err)
	}
	return nil
}

// Load implements ports.StateStore.
func (s *Store) Load(ctx context.Context, key domain.SessionKey) (*domain.WizardState, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state from redis: %w", err)
	}
	var state domain.WizardState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if state.Vars == nil {
		state.Vars = make(map[string]string)
	}
	return &state, nil
}

// Delete implements ports.StateStore.
func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete state from redis: %w", err)
	}
	return nil
}
