package ports

import (
	"context"

	"github.com/aretw0/botfactory/pkg/domain"
)

// SpecLoader resolves tenant specifications.
type SpecLoader interface {
	// LoadSpec returns the spec for botID. An empty version selects the latest one.
	// Returns domain.ErrSpecNotFound when the bot (or version) is unknown.
	LoadSpec(ctx context.Context, botID, version string) (*domain.BotSpec, error)
}
