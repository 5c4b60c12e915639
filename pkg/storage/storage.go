package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// ErrNoSnapshot is returned when no persisted cycle exists yet.
var ErrNoSnapshot = errors.New("no snapshot found")

// Database persists published cycle snapshots so the sensor key set survives
// process restarts.
type Database interface {
	// UpsertSnapshot stores one successful cycle's published mapping.
	UpsertSnapshot(ctx context.Context, snap types.Snapshot) error

	// GetSnapshot retrieves the snapshot for an exact cycle timestamp.
	GetSnapshot(ctx context.Context, ts time.Time) (types.Snapshot, error)

	// GetLatestSnapshot retrieves the most recent snapshot.
	GetLatestSnapshot(ctx context.Context) (types.Snapshot, error)

	// GetSnapshotHistory retrieves snapshots within [start, end).
	GetSnapshotHistory(ctx context.Context, start, end time.Time) ([]types.Snapshot, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "none", "Storage provider for cycle snapshots (available: none, firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "none":
			p.Database = noopDatabase{}
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
			p.Database = fs
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// noopDatabase is the provider for deployments that don't persist snapshots.
type noopDatabase struct{}

func (noopDatabase) UpsertSnapshot(context.Context, types.Snapshot) error { return nil }

func (noopDatabase) GetSnapshot(context.Context, time.Time) (types.Snapshot, error) {
	return types.Snapshot{}, ErrNoSnapshot
}

func (noopDatabase) GetLatestSnapshot(context.Context) (types.Snapshot, error) {
	return types.Snapshot{}, ErrNoSnapshot
}

func (noopDatabase) GetSnapshotHistory(context.Context, time.Time, time.Time) ([]types.Snapshot, error) {
	return nil, nil
}

func (noopDatabase) Close() error { return nil }
