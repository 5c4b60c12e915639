// Package poller drives the periodic collection cycle: it queries the NESO
// datastore, derives the sensor states and hands them to the publisher.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/dfs"
	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/metrics"
	"github.com/Johnr24/neso-octowatch/pkg/neso"
	"github.com/Johnr24/neso-octowatch/pkg/publisher"
	"github.com/Johnr24/neso-octowatch/pkg/storage"
	"github.com/Johnr24/neso-octowatch/pkg/types"
	"github.com/levenlabs/go-lflag"
)

// DefaultParticipant is the registered DFS participant the service tracks.
const DefaultParticipant = "OCTOPUS ENERGY LIMITED"

// Poller runs the collection loop.
type Poller struct {
	client *neso.Client
	pub    *publisher.Publisher
	sink   publisher.Sink
	db     storage.Database

	interval    time.Duration
	participant string

	// refresh carries on-demand cycle requests from the HTTP API.
	refresh chan struct{}
}

// Configured initializes the Poller with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(client *neso.Client, pub *publisher.Publisher, sink publisher.Sink, db storage.Database) *Poller {
	p := &Poller{
		client:  client,
		pub:     pub,
		sink:    sink,
		db:      db,
		refresh: make(chan struct{}, 1),
	}

	interval := lflag.Duration("poll-interval", 5*time.Minute, "Interval between collection cycles")
	participant := lflag.String("participant", DefaultParticipant, "Registered DFS Participant to track")

	lflag.Do(func() {
		p.interval = *interval
		p.participant = *participant
		if p.interval <= 0 {
			panic(fmt.Sprintf("poll-interval must be positive, got %s", p.interval))
		}
	})

	return p
}

// New creates a Poller without flag registration, used in tests.
func New(client *neso.Client, pub *publisher.Publisher, sink publisher.Sink, db storage.Database, interval time.Duration, participant string) *Poller {
	return &Poller{
		client:      client,
		pub:         pub,
		sink:        sink,
		db:          db,
		interval:    interval,
		participant: participant,
		refresh:     make(chan struct{}, 1),
	}
}

// ForceRefresh requests an immediate collection cycle. It never blocks; if a
// refresh is already pending the request is coalesced into it.
func (p *Poller) ForceRefresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Run seeds the publisher from the latest persisted snapshot, runs one cycle
// immediately and then keeps cycling every interval until the context is
// canceled. The timer is re-armed after each cycle finishes so cycles never
// overlap.
func (p *Poller) Run(ctx context.Context) error {
	p.seed(ctx)

	p.cycle(ctx)

	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "poller stopping")
			return nil
		case <-timer.C:
		case <-p.refresh:
			if !timer.Stop() {
				// drain so Reset below starts clean
				select {
				case <-timer.C:
				default:
				}
			}
			log.Ctx(ctx).InfoContext(ctx, "refresh requested")
		}
		p.cycle(ctx)
		timer.Reset(p.interval)
	}
}

func (p *Poller) seed(ctx context.Context) {
	snap, err := p.db.GetLatestSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoSnapshot) {
			log.Ctx(ctx).WarnContext(ctx, "failed to load latest snapshot", "error", err)
		}
		return
	}
	p.pub.Seed(snap.States)
	log.Ctx(ctx).InfoContext(ctx, "seeded states from snapshot",
		slog.Time("timestamp", snap.Timestamp),
		slog.Int("keys", len(snap.States)))
}

// cycle runs one full collection pass. A panic anywhere in the cycle is
// contained here so the loop keeps running; nothing is published for a
// panicked cycle and the retained mapping stays intact.
func (p *Poller) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "collection cycle panicked", "panic", r)
			metrics.PollCycles.WithLabelValues("error").Inc()
		}
	}()

	now := time.Now()
	log.Ctx(ctx).DebugContext(ctx, "collection cycle started")

	bidStates, bidErr := p.checkBids(ctx, now)
	utilStates, utilErr := p.checkUtilization(ctx, now)

	merged := p.pub.Apply(bidStates, utilStates)

	if err := p.sink.Publish(ctx, merged); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to publish states", "error", err)
	}
	if err := p.db.UpsertSnapshot(ctx, types.Snapshot{Timestamp: now, States: merged}); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist snapshot", "error", err)
	}

	result := "ok"
	switch {
	case bidErr != nil && utilErr != nil:
		result = "error"
	case bidErr != nil || utilErr != nil:
		result = "partial"
	}
	metrics.PollCycles.WithLabelValues(result).Inc()
	metrics.LastPoll.SetToCurrentTime()
	log.Ctx(ctx).InfoContext(ctx, "collection cycle finished",
		slog.String("result", result),
		slog.Duration("took", time.Since(now)))
}

// checkBids queries the bid-eligibility dataset and derives the session
// status and details states. A query failure yields the error state for the
// status key so consumers can see the failure and its time.
func (p *Poller) checkBids(ctx context.Context, now time.Time) (types.States, error) {
	start := time.Now()
	records, err := p.client.FetchBids(ctx, p.participant)
	metrics.QueryDuration.WithLabelValues("bids").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatasetErrors.WithLabelValues("bids").Inc()
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch bids", "error", err)
		return dfs.ErrorStates(types.KeyStatus, now, err), err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched bid records", slog.Int("count", len(records)))
	return dfs.SafeAnalyzeBids(ctx, records, now), nil
}

// checkUtilization queries the utilization dataset and derives the
// utilization, delivery date, time window, volume, price and highest
// accepted bid states.
func (p *Poller) checkUtilization(ctx context.Context, now time.Time) (types.States, error) {
	start := time.Now()
	records, err := p.client.FetchUtilization(ctx)
	metrics.QueryDuration.WithLabelValues("utilization").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DatasetErrors.WithLabelValues("utilization").Inc()
		log.Ctx(ctx).ErrorContext(ctx, "failed to fetch utilization", "error", err)
		return dfs.ErrorStates(types.KeyUtilization, now, err), err
	}
	log.Ctx(ctx).DebugContext(ctx, "fetched utilization records", slog.Int("count", len(records)))
	return dfs.SafeAnalyzeUtilization(ctx, records, p.participant, now), nil
}
