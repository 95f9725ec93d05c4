package ports

import (
	"context"
	"time"

	"github.com/aretw0/botfactory/pkg/domain"
)

// StateStore defines the interface for persisting wizard state between turns.
// Implementations must surface backend unavailability as an error rather than
// returning partial state.
type StateStore interface {
	// Save persists the state for a given key, expiring after ttl (0 = store default).
	Save(ctx context.Context, key domain.SessionKey, state *domain.WizardState, ttl time.Duration) error

	// Load retrieves the state for a given key.
	// Returns domain.ErrStateNotFound if no wizard is active.
	Load(ctx context.Context, key domain.SessionKey) (*domain.WizardState, error)

	// Delete removes the state. Deleting a missing key is not an error.
	Delete(ctx context.Context, key domain.SessionKey) error
}
