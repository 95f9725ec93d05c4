package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	key := domain.SessionKey{
		BotID:  "contract-bot",
		UserID: "user-" + time.Now().Format("20060102150405"),
	}

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewWizardState("/book")
		state.StepIndex = 1
		state.Vars["service"] = "massage"

		require.NoError(t, store.Save(ctx, key, state, time.Hour), "Save should not return error")

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "/book", loaded.FlowID)
		assert.Equal(t, 1, loaded.StepIndex)
		assert.Equal(t, "massage", loaded.Vars["service"])
	})

	t.Run("Loaded state is a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		loaded.Vars["service"] = "mutated"

		again, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "massage", again.Vars["service"])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, domain.SessionKey{BotID: key.BotID, UserID: "nobody"})
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})

	t.Run("Users are isolated", func(t *testing.T) {
		other := domain.SessionKey{BotID: key.BotID, UserID: key.UserID + "-other"}
		require.NoError(t, store.Save(ctx, other, domain.NewWizardState("/other"), time.Hour))
		defer func() { _ = store.Delete(ctx, other) }()

		loaded, err := store.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "/book", loaded.FlowID)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, key), "Delete should not return error")

		_, err := store.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrStateNotFound, "Load after Delete should return ErrStateNotFound")

		assert.NoError(t, store.Delete(ctx, key), "Deleting a missing key is a no-op")
	})
}
