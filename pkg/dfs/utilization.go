package dfs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/types"
)

// pairDelimiter joins the two slots of a paired session window and their
// volumes.
const pairDelimiter = ", "

// SafeAnalyzeUtilization runs the utilization analysis with the same
// panic-to-error-state conversion as SafeAnalyzeBids.
func SafeAnalyzeUtilization(ctx context.Context, records []types.RawRecord, participant string, now time.Time) (st types.States) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "utilization analysis failed", slog.Any("panic", r))
			st = ErrorStates(types.KeyUtilization, now, fmt.Errorf("utilization analysis: %v", r))
		}
	}()
	return AnalyzeUtilization(ctx, records, participant, now)
}

// AnalyzeUtilization derives the utilization sensors from the market-wide
// record set: the tracked participant's latest session (status, date, paired
// time windows, volumes, mean price) and the market-wide highest accepted
// bid, all anchored on the resolved delivery date. The records arrive newest
// first (descending row id).
func AnalyzeUtilization(ctx context.Context, records []types.RawRecord, participant string, now time.Time) types.States {
	lastChecked := types.FormatTimestamp(now)

	resolved := ResolveDate(deliveryDates(records), types.Midnight(now))
	dateRecords := recordsForDate(records, resolved)

	// participant-specific fields must come from the participant's own rows,
	// never from whichever row happens to be newest market-wide
	var mine []types.RawRecord
	for _, rec := range dateRecords {
		p, ok := rec.String(types.ColParticipant)
		if ok && p == participant {
			mine = append(mine, rec)
		}
	}

	log.Ctx(ctx).DebugContext(
		ctx,
		"analyzed utilization",
		slog.Int("entries", len(records)),
		slog.Time("resolvedDate", resolved),
		slog.Int("participantEntries", len(mine)),
	)

	states := make(types.States, 6)

	if len(mine) > 0 {
		latest := mine[0]
		status, ok := latest.String(types.ColStatus)
		if !ok {
			status = types.StatusUnknown
		}
		deliveryDate, _ := latest.Value(types.ColDeliveryDate)

		states[types.KeyUtilization] = types.SensorState{
			State:      status,
			Attributes: map[string]any{"last_checked": lastChecked},
		}
		states[types.KeyDeliveryDate] = types.SensorState{
			State:      types.Normalize(deliveryDate),
			Attributes: map[string]any{},
		}

		ordered := append([]types.RawRecord(nil), mine...)
		sortByStart(ordered)

		windows, volumes := pairSessions(ordered)
		states[types.KeyTimeWindow] = types.SensorState{
			State:      strings.Join(windows, " | "),
			Attributes: map[string]any{"windows": toAnySlice(windows)},
		}
		states[types.KeyVolume] = types.SensorState{
			State:      strings.Join(volumes, " | "),
			Attributes: map[string]any{"volumes": toAnySlice(volumes)},
		}
		states[types.KeyPrice] = priceState(ordered)
	} else {
		states[types.KeyUtilization] = types.SensorState{
			State:      types.StatusUnknown,
			Attributes: map[string]any{"last_checked": lastChecked},
		}
		states[types.KeyDeliveryDate] = types.SensorState{State: nil, Attributes: map[string]any{}}
		states[types.KeyTimeWindow] = types.SensorState{State: nil, Attributes: map[string]any{}}
		states[types.KeyVolume] = types.SensorState{State: nil, Attributes: map[string]any{}}
		states[types.KeyPrice] = types.SensorState{State: nil, Attributes: map[string]any{}}
	}

	if best, ok := highestAccepted(dateRecords); ok {
		price, _ := best.Float(types.ColUtilizationMWh)
		deliveryDate, _ := best.Value(types.ColDeliveryDate)
		from, _ := best.Value(types.ColFrom)
		to, _ := best.Value(types.ColTo)
		volume, _ := best.Value(types.ColVolumeMW)
		states[types.KeyHighestAccepted] = types.SensorState{
			State: price,
			Attributes: map[string]any{
				"delivery_date": types.Normalize(deliveryDate),
				"time_from":     types.Normalize(from),
				"time_to":       types.Normalize(to),
				"volume":        types.Normalize(volume),
				"last_update":   lastChecked,
			},
		}
	} else {
		states[types.KeyHighestAccepted] = types.SensorState{
			State:      types.NoAcceptedBids,
			Attributes: map[string]any{},
		}
	}

	return states
}

// highestAccepted returns the accepted record with the maximum utilization
// price on the resolved date. The max is stable: ties keep the first
// occurrence in the input ordering.
func highestAccepted(records []types.RawRecord) (types.RawRecord, bool) {
	var best types.RawRecord
	var bestPrice float64
	found := false
	for _, rec := range records {
		status, ok := rec.String(types.ColStatus)
		if !ok || !strings.Contains(strings.ToLower(status), "accepted") {
			continue
		}
		price, ok := rec.Float(types.ColUtilizationMWh)
		if !ok {
			continue
		}
		if !found || price > bestPrice {
			best = rec
			bestPrice = price
			found = true
		}
	}
	return best, found
}

// pairSessions combines consecutive records (0 with 1, 2 with 3, a lone
// trailing record on its own) into one window string and one volume string
// per pair. DFS sessions are published as two half-hour rows, so a pair is
// one delivered session.
func pairSessions(records []types.RawRecord) (windows, volumes []string) {
	for i := 0; i < len(records); i += 2 {
		group := records[i:min(i+2, len(records))]
		var w, v []string
		for _, rec := range group {
			from, _ := rec.String(types.ColFrom)
			to, _ := rec.String(types.ColTo)
			w = append(w, fmt.Sprintf("%s - %s", from, to))
			if vol, ok := rec.String(types.ColVolumeMW); ok {
				v = append(v, vol)
			}
		}
		windows = append(windows, strings.Join(w, pairDelimiter))
		volumes = append(volumes, strings.Join(v, pairDelimiter))
	}
	return windows, volumes
}

// priceState summarizes the participant's utilization prices over the
// resolved date: arithmetic mean as the value, min/max/count as attributes.
func priceState(records []types.RawRecord) types.SensorState {
	var sum, minP, maxP float64
	count := 0
	for _, rec := range records {
		price, ok := rec.Float(types.ColUtilizationMWh)
		if !ok {
			continue
		}
		if count == 0 || price < minP {
			minP = price
		}
		if count == 0 || price > maxP {
			maxP = price
		}
		sum += price
		count++
	}
	if count == 0 {
		return types.SensorState{State: nil, Attributes: map[string]any{}}
	}
	return types.SensorState{
		State: sum / float64(count),
		Attributes: map[string]any{
			"min":   minP,
			"max":   maxP,
			"count": count,
		},
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
