package storagemock

import (
	"context"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/storage"
	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) UpsertSnapshot(ctx context.Context, snap types.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockDatabase) GetSnapshot(ctx context.Context, ts time.Time) (types.Snapshot, error) {
	args := m.Called(ctx, ts)
	if len(args) > 0 {
		return args.Get(0).(types.Snapshot), args.Error(1)
	}
	return types.Snapshot{}, nil
}

func (m *MockDatabase) GetLatestSnapshot(ctx context.Context) (types.Snapshot, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.Snapshot), args.Error(1)
	}
	return types.Snapshot{}, nil
}

func (m *MockDatabase) GetSnapshotHistory(ctx context.Context, start, end time.Time) ([]types.Snapshot, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		snaps, _ := args.Get(0).([]types.Snapshot)
		return snaps, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
