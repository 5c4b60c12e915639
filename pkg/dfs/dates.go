package dfs

import (
	"sort"
	"time"

	"github.com/Johnr24/neso-octowatch/pkg/types"
)

// ResolveDate picks the anchor date for a cycle's summaries: the earliest
// date on or after today, falling back to the most recent past date when
// every date has already passed. Returns the zero time for an empty input.
func ResolveDate(dates []time.Time, today time.Time) time.Time {
	var upcoming time.Time
	var latest time.Time
	for _, d := range dates {
		if d.After(latest) {
			latest = d
		}
		if !d.Before(today) && (upcoming.IsZero() || d.Before(upcoming)) {
			upcoming = d
		}
	}
	if !upcoming.IsZero() {
		return upcoming
	}
	return latest
}

// deliveryDates collects the distinct delivery dates present in a record
// set. Records without a parseable delivery date are skipped.
func deliveryDates(records []types.RawRecord) []time.Time {
	seen := make(map[time.Time]struct{}, len(records))
	var dates []time.Time
	for _, rec := range records {
		d, ok := rec.Date(types.ColDeliveryDate)
		if !ok {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	return dates
}

// recordsForDate filters to rows on the given delivery date, preserving the
// source ordering (descending row id, i.e. newest first).
func recordsForDate(records []types.RawRecord, date time.Time) []types.RawRecord {
	var out []types.RawRecord
	for _, rec := range records {
		d, ok := rec.Date(types.ColDeliveryDate)
		if ok && d.Equal(date) {
			out = append(out, rec)
		}
	}
	return out
}

// sortByStart orders records by their From time ascending. From values are
// zero-padded HH:MM strings so a lexicographic sort is chronological. The
// sort is stable so equal start times keep their source order.
func sortByStart(records []types.RawRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, _ := records[i].String(types.ColFrom)
		b, _ := records[j].String(types.ColFrom)
		return a < b
	})
}
