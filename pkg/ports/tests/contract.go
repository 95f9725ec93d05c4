package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/ports"
)

// SpecLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.SpecLoader.
// The loader must already hold a spec for botID with at least one flow.
func SpecLoaderContractTest(t *testing.T, loader ports.SpecLoader, botID string) {
	t.Helper()
	ctx := context.Background()

	t.Run("LoadSpec_Latest", func(t *testing.T) {
		spec, err := loader.LoadSpec(ctx, botID, "")
		if err != nil {
			t.Fatalf("unexpected error loading spec %s: %v", botID, err)
		}
		if len(spec.Flows) == 0 {
			t.Errorf("expected flows for %s, got none", botID)
		}
		if spec.BotID != botID {
			t.Errorf("bot id mismatch: got %q, want %q", spec.BotID, botID)
		}
	})

	t.Run("LoadSpec_ExactVersion", func(t *testing.T) {
		latest, err := loader.LoadSpec(ctx, botID, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		spec, err := loader.LoadSpec(ctx, botID, latest.Version)
		if err != nil {
			t.Fatalf("unexpected error loading version %q: %v", latest.Version, err)
		}
		if spec.Version != latest.Version {
			t.Errorf("version mismatch: got %q, want %q", spec.Version, latest.Version)
		}
	})

	t.Run("LoadSpec_UnknownVersion", func(t *testing.T) {
		_, err := loader.LoadSpec(ctx, botID, "no-such-version")
		if !errors.Is(err, domain.ErrSpecNotFound) {
			t.Errorf("expected ErrSpecNotFound, got %v", err)
		}
	})

	t.Run("LoadSpec_UnknownBot", func(t *testing.T) {
		_, err := loader.LoadSpec(ctx, "non-existent-bot", "")
		if !errors.Is(err, domain.ErrSpecNotFound) {
			t.Errorf("expected ErrSpecNotFound, got %v", err)
		}
	})
}
