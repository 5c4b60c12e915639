package dfs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/log"
	"github.com/Johnr24/neso-octowatch/pkg/types"
)

// SafeAnalyzeBids runs the bid-eligibility analysis, converting any panic
// from an unexpected data shape into the dataset's error state so nothing
// propagates past the cycle boundary.
func SafeAnalyzeBids(ctx context.Context, records []types.RawRecord, now time.Time) (st types.States) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).ErrorContext(ctx, "bid analysis failed", slog.Any("panic", r))
			st = ErrorStates(types.KeyStatus, now, fmt.Errorf("bid analysis: %v", r))
		}
	}()
	return AnalyzeBids(ctx, records, now)
}

// AnalyzeBids summarizes the bid-eligibility record set: an active/inactive
// flag, entry count, the resolved delivery date, and a human-readable slot
// listing for that date with the raw filtered rows attached.
func AnalyzeBids(ctx context.Context, records []types.RawRecord, now time.Time) types.States {
	lastChecked := types.FormatTimestamp(now)

	if len(records) == 0 {
		return types.States{
			types.KeyStatus: {
				State: types.StatusInactive,
				Attributes: map[string]any{
					"last_checked":     lastChecked,
					"entry_count":      0,
					"service_type":     nil,
					"dispatch_type":    nil,
					"most_recent_date": nil,
				},
			},
			types.KeyDetails: {
				State:      types.NoEntries,
				Attributes: map[string]any{"raw_data": []any{}},
			},
		}
	}

	resolved := ResolveDate(deliveryDates(records), types.Midnight(now))
	recent := recordsForDate(records, resolved)
	sortByStart(recent)

	serviceType, _ := records[0].Value(types.ColServiceType)
	dispatchType, _ := records[0].Value(types.ColDispatchType)

	log.Ctx(ctx).DebugContext(
		ctx,
		"analyzed bid eligibility",
		slog.Int("entries", len(records)),
		slog.Time("resolvedDate", resolved),
		slog.Int("resolvedEntries", len(recent)),
	)

	return types.States{
		types.KeyStatus: {
			State: types.StatusActive,
			Attributes: map[string]any{
				"last_checked":     lastChecked,
				"entry_count":      len(records),
				"service_type":     types.Normalize(serviceType),
				"dispatch_type":    types.Normalize(dispatchType),
				"most_recent_date": formatDate(resolved),
			},
		},
		types.KeyDetails: {
			State:      formatTimeSlots(recent, resolved),
			Attributes: map[string]any{"raw_data": types.Normalize(recent)},
		},
	}
}

// slotPeriod is a run of contiguous rows sharing the same capacity and
// guaranteed price, collapsed into one line of the listing.
type slotPeriod struct {
	start, end string
	mw         float64
	mwOK       bool
	price      float64
	priceOK    bool
}

func (p slotPeriod) line() string {
	var b strings.Builder
	fmt.Fprintf(&b, "• %s - %s", p.start, p.end)
	if p.mwOK {
		fmt.Fprintf(&b, " (%s MW)", formatNumber(p.mw))
	}
	if p.priceOK {
		fmt.Fprintf(&b, " with a guaranteed acceptance price of £%s/MWh", formatNumber(p.price))
	}
	return b.String()
}

// formatTimeSlots renders the slot listing for one delivery date: a date
// header followed by one line per (capacity, price) period. Absent fields
// are omitted rather than printed as placeholders.
func formatTimeSlots(records []types.RawRecord, date time.Time) string {
	if len(records) == 0 {
		return types.NoEntries
	}

	lines := []string{fmt.Sprintf("\n**%s**", formatDate(date))}

	var cur *slotPeriod
	for _, rec := range records {
		from, _ := rec.String(types.ColFrom)
		to, _ := rec.String(types.ColTo)
		mw, mwOK := rec.Float(types.ColRequirementMW)
		price, priceOK := rec.Float(types.ColGuaranteedPrice)

		sameRun := cur != nil &&
			cur.mwOK == mwOK && (!mwOK || cur.mw == mw) &&
			cur.priceOK == priceOK && (!priceOK || cur.price == price)
		if sameRun {
			cur.end = to
			continue
		}
		if cur != nil {
			lines = append(lines, cur.line())
		}
		cur = &slotPeriod{start: from, end: to, mw: mw, mwOK: mwOK, price: price, priceOK: priceOK}
	}
	if cur != nil {
		lines = append(lines, cur.line())
	}

	return strings.Join(lines, "\n")
}

func formatDate(d time.Time) any {
	if d.IsZero() {
		return nil
	}
	return d.Format("2006-01-02")
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ErrorStates is the publication for a failed dataset: an error status on
// its primary key with timestamp and message attributes. Other keys are left
// untouched so they retain their last good value.
func ErrorStates(key string, now time.Time, err error) types.States {
	return types.States{
		key: {
			State: types.StatusError,
			Attributes: map[string]any{
				"last_checked": types.FormatTimestamp(now),
				"error":        err.Error(),
			},
		},
	}
}
