// Package breaker gates calls to an unreliable dependency per tenant.
//
// Every tenant (bot id) has its own closed / open / half-open state machine. Admission
// decisions and outcome accounting are serialized under one lock; the lock is never held
// while the guarded operation runs.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/pkg/observability"
)

// ErrOpen is returned when a call is rejected without being attempted.
var ErrOpen = errors.New("circuit breaker is open")

// ErrTimeout marks a guarded call that failed after running past the timeout threshold.
var ErrTimeout = errors.New("circuit breaker call timed out")

// State is the breaker state of one tenant.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config holds the thresholds. Zero fields take the defaults.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
	TimeoutThreshold time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
		TimeoutThreshold: 25 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = d.SuccessThreshold
	}
	if c.TimeoutThreshold <= 0 {
		c.TimeoutThreshold = d.TimeoutThreshold
	}
	return c
}

// Stats is a snapshot of one tenant's breaker.
type Stats struct {
	State            State
	FailureCount     int
	SuccessCount     int
	HalfOpenAttempts int
	LastFailure      time.Time
}

// Breaker holds the per-tenant state machines. It is safe for concurrent use.
type Breaker struct {
	cfg Config

	mu      sync.Mutex
	tenants map[string]*Stats

	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Recorder
}

// Option configures the Breaker.
type Option func(*Breaker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

func WithMetrics(metrics *observability.Recorder) Option {
	return func(b *Breaker) {
		b.metrics = metrics
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// New creates a Breaker.
func New(cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:     cfg.withDefaults(),
		tenants: make(map[string]*Stats),
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the effective thresholds.
func (b *Breaker) Config() Config {
	return b.cfg
}

// stats must be called with b.mu held.
func (b *Breaker) stats(botID string) *Stats {
	s, ok := b.tenants[botID]
	if !ok {
		s = &Stats{State: Closed}
		b.tenants[botID] = s
	}
	return s
}

// transition must be called with b.mu held.
func (b *Breaker) transition(botID string, s *Stats, to State) {
	if s.State == to {
		return
	}
	b.logger.Warn("circuit breaker transition", "bot_id", botID, "from", s.State, "to", to)
	s.State = to
	b.metrics.BreakerTransition(botID, string(to))
}

// CanProceed decides whether a call for botID may run and counts a half-open trial.
func (b *Breaker) CanProceed(botID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.admit(botID)
}

func (b *Breaker) admit(botID string) bool {
	s := b.stats(botID)
	switch s.State {
	case Open:
		if b.now().Sub(s.LastFailure) < b.cfg.RecoveryTimeout {
			return false
		}
		b.transition(botID, s, HalfOpen)
		s.HalfOpenAttempts = 0
		s.SuccessCount = 0
		s.HalfOpenAttempts++
		return true
	case HalfOpen:
		if s.HalfOpenAttempts >= b.cfg.SuccessThreshold {
			return false
		}
		s.HalfOpenAttempts++
		return true
	default:
		return true
	}
}

// RecordSuccess accounts a successful call.
func (b *Breaker) RecordSuccess(botID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats(botID)
	switch s.State {
	case HalfOpen:
		s.SuccessCount++
		if s.SuccessCount >= b.cfg.SuccessThreshold {
			b.transition(botID, s, Closed)
			s.FailureCount = 0
			s.SuccessCount = 0
			s.HalfOpenAttempts = 0
		}
	default:
		s.FailureCount = 0
	}
}

// RecordFailure accounts a failed call.
func (b *Breaker) RecordFailure(botID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.stats(botID)
	s.LastFailure = b.now()
	switch s.State {
	case HalfOpen:
		b.transition(botID, s, Open)
		s.SuccessCount = 0
		s.HalfOpenAttempts = 0
	case Closed:
		s.FailureCount++
		if s.FailureCount >= b.cfg.FailureThreshold {
			b.transition(botID, s, Open)
		}
	}
}

// State returns the current state of botID without admitting a call.
func (b *Breaker) State(botID string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.tenants[botID]; ok {
		return s.State
	}
	return Closed
}

// Stats returns a snapshot of botID.
func (b *Breaker) Stats(botID string) Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.tenants[botID]; ok {
		return *s
	}
	return Stats{State: Closed}
}

// Reset forgets the state of botID.
func (b *Breaker) Reset(botID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tenants, botID)
}

// Run executes op under the breaker of botID. A rejected call returns ErrOpen without
// invoking op. Calls that fail after running for at least the timeout threshold are
// additionally marked with ErrTimeout.
func Run[T any](ctx context.Context, b *Breaker, botID string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.CanProceed(botID) {
		b.metrics.BreakerRejected(botID)
		return zero, fmt.Errorf("%w: bot %s", ErrOpen, botID)
	}

	start := b.now()
	res, err := op(ctx)
	if err != nil {
		b.RecordFailure(botID)
		if b.now().Sub(start) >= b.cfg.TimeoutThreshold || errors.Is(err, context.DeadlineExceeded) {
			b.metrics.BreakerTimeout(botID)
			return zero, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return zero, err
	}
	b.RecordSuccess(botID)
	return res, nil
}
