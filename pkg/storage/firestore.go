package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const snapshotCollection = "snapshots"

// FirestoreProvider implements Database using Google Cloud Firestore.
// Snapshots are stored as JSON blobs with the RFC3339 cycle timestamp as the
// document ID, so lexicographic document-ID ranges are time ranges.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider and registers its flags.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how the firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// empty project/database are allowed, the client infers them
	return nil
}

// Init initializes the Firestore client. Must be called before the provider
// methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func snapshotDocID(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

// UpsertSnapshot stores one cycle's published mapping.
func (f *FirestoreProvider) UpsertSnapshot(ctx context.Context, snap types.Snapshot) error {
	if snap.Timestamp.IsZero() {
		return fmt.Errorf("snapshot missing timestamp")
	}
	jsonBytes, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = f.client.Collection(snapshotCollection).Doc(snapshotDocID(snap.Timestamp)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": snap.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot stored for an exact cycle timestamp.
func (f *FirestoreProvider) GetSnapshot(ctx context.Context, ts time.Time) (types.Snapshot, error) {
	doc, err := f.client.Collection(snapshotCollection).Doc(snapshotDocID(ts)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Snapshot{}, ErrNoSnapshot
		}
		return types.Snapshot{}, fmt.Errorf("failed to fetch snapshot doc: %w", err)
	}
	return f.decodeSnapshot(ctx, doc)
}

// GetLatestSnapshot retrieves the most recent stored cycle.
func (f *FirestoreProvider) GetLatestSnapshot(ctx context.Context) (types.Snapshot, error) {
	iter := f.client.Collection(snapshotCollection).
		OrderBy("timestamp", firestore.Desc).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return types.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("failed to get latest snapshot doc: %w", err)
	}
	return f.decodeSnapshot(ctx, doc)
}

// GetSnapshotHistory retrieves snapshots within [start, end). Uses document
// ID range queries so only matching documents are read.
func (f *FirestoreProvider) GetSnapshotHistory(ctx context.Context, start, end time.Time) ([]types.Snapshot, error) {
	coll := f.client.Collection(snapshotCollection)
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(snapshotDocID(start))).
		Where(firestore.DocumentID, "<", coll.Doc(snapshotDocID(end))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var snaps []types.Snapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating snapshots: %w", err)
		}
		snap, err := f.decodeSnapshot(ctx, doc)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (f *FirestoreProvider) decodeSnapshot(ctx context.Context, doc *firestore.DocumentSnapshot) (types.Snapshot, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "snapshot doc missing json", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return types.Snapshot{}, fmt.Errorf("snapshot document %s missing 'json' field: %w", doc.Ref.ID, err)
	}

	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "snapshot doc json not string", slog.String("docID", doc.Ref.ID))
		return types.Snapshot{}, fmt.Errorf("snapshot document %s 'json' field is not a string", doc.Ref.ID)
	}

	var snap types.Snapshot
	if err := json.Unmarshal([]byte(jsonStr), &snap); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal snapshot", slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return types.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot (id=%s): %w", doc.Ref.ID, err)
	}
	return snap, nil
}
