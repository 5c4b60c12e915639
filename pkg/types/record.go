package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Column names as returned by the NESO datastore tables. The bid-eligibility
// and utilization tables share the date/time columns but differ elsewhere.
const (
	ColID              = "_id"
	ColDeliveryDate    = "Delivery Date"
	ColFrom            = "From"
	ColTo              = "To"
	ColRequirementMW   = "Service Requirement MW"
	ColGuaranteedPrice = "Guaranteed Acceptance Price GBP per MWh"
	ColEligibleBids    = "Participant Bids Eligible"
	ColServiceType     = "Service Requirement Type"
	ColDispatchType    = "Dispatch Type"
	ColParticipant     = "Registered DFS Participant"
	ColStatus          = "Status"
	ColUtilizationMWh  = "Utilisation Price GBP per MWh"
	ColVolumeMW        = "DFS Volume MW"
)

// RawRecord is one row from a datastore query. The API enforces no schema, so
// every column access goes through an accessor that reports absence instead of
// assuming presence.
type RawRecord map[string]any

// Value returns the raw value for a column. The second return is false when
// the column is absent or null.
func (r RawRecord) Value(col string) (any, bool) {
	v, ok := r[col]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns the column as a string. Numeric values are formatted rather
// than rejected since the API is inconsistent about value types.
func (r RawRecord) String(col string) (string, bool) {
	v, ok := r.Value(col)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// Float returns the column as a float64, tolerating string-typed numeric
// input (the utilization price column is sometimes a string).
func (r RawRecord) Float(col string) (float64, bool) {
	v, ok := r.Value(col)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Date returns the column's delivery date normalized to midnight in the
// process's local time zone.
func (r RawRecord) Date(col string) (time.Time, bool) {
	s, ok := r.String(col)
	if !ok {
		return time.Time{}, false
	}
	t, ok := parseDate(s)
	if !ok {
		return time.Time{}, false
	}
	return Midnight(t), true
}

// Midnight truncates a time to the start of its day in local time.
func Midnight(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
