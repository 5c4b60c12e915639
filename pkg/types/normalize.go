package types

import (
	"encoding/json"
	"time"
)

// isoSecond is the canonical timestamp layout for published values: whole
// seconds with an explicit UTC offset.
const isoSecond = "2006-01-02T15:04:05-07:00"

// Normalize converts a value into its canonical serialization-safe form:
// nil, string, number, or ISO-8601 timestamp string with an explicit offset
// truncated to whole seconds. Maps and slices are recursed element-wise.
// Normalizing an already-normalized value returns it unchanged.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return FormatTimestamp(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case string:
		if ts, ok := parseTimestamp(t); ok {
			return FormatTimestamp(ts)
		}
		return t
	case RawRecord:
		return normalizeMap(t)
	case map[string]any:
		return normalizeMap(t)
	case []RawRecord:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeMap(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

// FormatTimestamp renders a time in the canonical published form,
// sub-second precision dropped.
func FormatTimestamp(t time.Time) string {
	return t.Truncate(time.Second).Format(isoSecond)
}

// timestampLayouts covers the shapes the datastore emits: with or without an
// offset, with or without fractional seconds. Offset-free timestamps are
// interpreted in the process's local zone before formatting.
var timestampLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05.999999999", true},
	{"2006-01-02 15:04:05.999999999", true},
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, l := range timestampLayouts {
		var t time.Time
		var err error
		if l.local {
			t, err = time.ParseInLocation(l.layout, s, time.Local)
		} else {
			t, err = time.Parse(l.layout, s)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
