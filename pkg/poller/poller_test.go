package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/neso"
	"github.com/Johnr24/neso-octowatch/pkg/publisher"
	"github.com/Johnr24/neso-octowatch/pkg/storage"
	"github.com/Johnr24/neso-octowatch/pkg/storage/storagemock"
	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// testAPI serves canned datastore responses, telling the two datasets apart
// by the table ID inside the sql parameter.
type testAPI struct {
	bidsStatus int32 // http status for the bids dataset, 0 means 200
	utilStatus int32

	server *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	a := &testAPI{}
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")

	a.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sql := r.URL.Query().Get("sql")
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(sql, neso.DefaultBidsTable):
			if st := atomic.LoadInt32(&a.bidsStatus); st != 0 {
				w.WriteHeader(int(st))
				return
			}
			fmt.Fprintf(w, `{"success": true, "result": {"records": [
				{"_id": 1, "Delivery Date": %q, "From": "17:00", "To": "17:30",
				 "Service Requirement MW": 100, "Guaranteed Acceptance Price GBP per MWh": 55.0,
				 "Service Type": "SCHEDULED", "Dispatch Type": "UTILISATION"}
			]}}`, tomorrow)
		case strings.Contains(sql, neso.DefaultUtilizationTable):
			if st := atomic.LoadInt32(&a.utilStatus); st != 0 {
				w.WriteHeader(int(st))
				return
			}
			fmt.Fprintf(w, `{"success": true, "result": {"records": [
				{"_id": 1, "Delivery Date": %q, "From": "17:00", "To": "17:30",
				 "Registered DFS Participant": "OCTOPUS ENERGY LIMITED", "Status": "ACCEPTED",
				 "Utilisation Price GBP per MWh": 60.0, "DFS Volume MW": 25}
			]}}`, tomorrow)
		default:
			t.Errorf("unexpected sql: %s", sql)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(a.server.Close)
	return a
}

func (a *testAPI) client() *neso.Client {
	return neso.NewClient(a.server.URL, a.server.Client())
}

func newTestDB() *storagemock.MockDatabase {
	db := &storagemock.MockDatabase{}
	db.On("GetLatestSnapshot", mock.Anything).Return(types.Snapshot{}, storage.ErrNoSnapshot)
	db.On("UpsertSnapshot", mock.Anything, mock.Anything).Return(nil)
	return db
}

func TestCyclePublishesAllKeys(t *testing.T) {
	api := newTestAPI(t)
	sink := &publisher.MemorySink{}
	db := newTestDB()
	p := New(api.client(), publisher.New(), sink, db, time.Minute, DefaultParticipant)

	p.cycle(context.Background())

	last := sink.Last()
	for _, key := range []string{
		types.KeyStatus,
		types.KeyDetails,
		types.KeyUtilization,
		types.KeyDeliveryDate,
		types.KeyTimeWindow,
		types.KeyPrice,
		types.KeyVolume,
		types.KeyHighestAccepted,
	} {
		assert.Contains(t, last, key)
	}
	assert.Equal(t, types.StatusActive, last[types.KeyStatus].State)
	assert.Equal(t, "ACCEPTED", last[types.KeyUtilization].State)

	db.AssertCalled(t, "UpsertSnapshot", mock.Anything, mock.Anything)
}

func TestCycleRetainsLastGoodOnFailure(t *testing.T) {
	api := newTestAPI(t)
	sink := &publisher.MemorySink{}
	p := New(api.client(), publisher.New(), sink, newTestDB(), time.Minute, DefaultParticipant)

	ctx := context.Background()
	p.cycle(ctx)
	goodDetails := sink.Last()[types.KeyDetails]

	// bids dataset starts failing, utilization keeps working
	atomic.StoreInt32(&api.bidsStatus, http.StatusInternalServerError)
	p.cycle(ctx)

	last := sink.Last()
	assert.Equal(t, types.StatusError, last[types.KeyStatus].State)
	assert.Contains(t, last[types.KeyStatus].Attributes, "error")
	assert.Equal(t, goodDetails, last[types.KeyDetails], "untouched keys keep the last good value")
	assert.Equal(t, "ACCEPTED", last[types.KeyUtilization].State)
}

func TestCycleBothDatasetsFail(t *testing.T) {
	api := newTestAPI(t)
	atomic.StoreInt32(&api.bidsStatus, http.StatusInternalServerError)
	atomic.StoreInt32(&api.utilStatus, http.StatusInternalServerError)
	sink := &publisher.MemorySink{}
	p := New(api.client(), publisher.New(), sink, newTestDB(), time.Minute, DefaultParticipant)

	p.cycle(context.Background())

	last := sink.Last()
	assert.Equal(t, types.StatusError, last[types.KeyStatus].State)
	assert.Equal(t, types.StatusError, last[types.KeyUtilization].State)
}

func TestSeedFromSnapshot(t *testing.T) {
	api := newTestAPI(t)
	pub := publisher.New()
	db := &storagemock.MockDatabase{}
	db.On("GetLatestSnapshot", mock.Anything).Return(types.Snapshot{
		Timestamp: time.Now(),
		States: types.States{
			types.KeyStatus: {State: types.StatusInactive, Attributes: map[string]any{"entry_count": 0}},
		},
	}, nil)
	p := New(api.client(), pub, &publisher.MemorySink{}, db, time.Minute, DefaultParticipant)

	p.seed(context.Background())

	got, ok := pub.Get(types.KeyStatus)
	require.True(t, ok)
	assert.Equal(t, types.StatusInactive, got.State)
}

func TestRunStopsOnCancel(t *testing.T) {
	api := newTestAPI(t)
	p := New(api.client(), publisher.New(), &publisher.MemorySink{}, newTestDB(), time.Hour, DefaultParticipant)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestForceRefreshTriggersCycle(t *testing.T) {
	api := newTestAPI(t)
	sink := &publisher.MemorySink{}
	p := New(api.client(), publisher.New(), sink, newTestDB(), time.Hour, DefaultParticipant)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = p.Run(ctx)
	}()

	// wait for the startup cycle, then break the bids dataset and refresh
	require.Eventually(t, func() bool {
		return len(sink.Last()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	atomic.StoreInt32(&api.bidsStatus, http.StatusInternalServerError)
	p.ForceRefresh()

	assert.Eventually(t, func() bool {
		return sink.Last()[types.KeyStatus].State == types.StatusError
	}, 5*time.Second, 10*time.Millisecond, "refresh should run a cycle well before the hour interval")
}
