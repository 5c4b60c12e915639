package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreProvider(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping firestore tests")
	}

	projectID := "test-project-id"

	// Use a random database for isolation
	randDB := fmt.Sprintf("test-db-%d", time.Now().UnixNano())
	f := &FirestoreProvider{
		projectID: projectID,
		database:  randDB,
	}

	ctx := context.Background()
	require.NoError(t, f.Init(ctx))
	defer f.Close()

	t.Run("Validate", func(t *testing.T) {
		require.NoError(t, f.Validate())
	})

	t.Run("NoSnapshotYet", func(t *testing.T) {
		_, err := f.GetLatestSnapshot(ctx)
		assert.ErrorIs(t, err, ErrNoSnapshot)
	})

	t.Run("UpsertAndGet", func(t *testing.T) {
		now := time.Now().Truncate(time.Second).UTC() // doc IDs are RFC3339, second precision
		snap := types.Snapshot{
			Timestamp: now,
			States: types.States{
				types.KeyStatus:          {State: types.StatusActive, Attributes: map[string]any{"entry_count": float64(4)}},
				types.KeyHighestAccepted: {State: 60.5},
			},
		}
		require.NoError(t, f.UpsertSnapshot(ctx, snap))

		got, err := f.GetSnapshot(ctx, now)
		require.NoError(t, err)
		assert.True(t, got.Timestamp.Equal(now))
		assert.Equal(t, types.StatusActive, got.States[types.KeyStatus].State)
		assert.Equal(t, 60.5, got.States[types.KeyHighestAccepted].State)
	})

	t.Run("Latest", func(t *testing.T) {
		older := time.Now().Add(-time.Hour).Truncate(time.Second).UTC()
		newer := time.Now().Truncate(time.Second).UTC()
		require.NoError(t, f.UpsertSnapshot(ctx, types.Snapshot{Timestamp: older, States: types.States{}}))
		require.NoError(t, f.UpsertSnapshot(ctx, types.Snapshot{Timestamp: newer, States: types.States{}}))

		got, err := f.GetLatestSnapshot(ctx)
		require.NoError(t, err)
		assert.True(t, got.Timestamp.Equal(newer))
	})

	t.Run("History", func(t *testing.T) {
		base := time.Now().Add(-24 * time.Hour).Truncate(time.Second).UTC()
		for i := 0; i < 3; i++ {
			snap := types.Snapshot{Timestamp: base.Add(time.Duration(i) * time.Minute), States: types.States{}}
			require.NoError(t, f.UpsertSnapshot(ctx, snap))
		}

		snaps, err := f.GetSnapshotHistory(ctx, base, base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.Len(t, snaps, 2, "history range is half-open")
	})

	t.Run("MissingTimestamp", func(t *testing.T) {
		err := f.UpsertSnapshot(ctx, types.Snapshot{})
		assert.ErrorContains(t, err, "missing timestamp")
	})
}
