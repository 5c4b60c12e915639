package types

import "time"

// Sensor keys published every cycle. The key set is stable: a successful
// cycle always emits every key it owns, falling back to explicit
// placeholders when the underlying data is empty.
const (
	KeyStatus          = "octopus_dfs_session_status"
	KeyDetails         = "octopus_dfs_session_details"
	KeyUtilization     = "octopus_dfs_session_utilization"
	KeyDeliveryDate    = "octopus_dfs_session_delivery_date"
	KeyTimeWindow      = "octopus_dfs_session_time_window"
	KeyPrice           = "octopus_dfs_session_price"
	KeyVolume          = "octopus_dfs_session_volume"
	KeyHighestAccepted = "octopus_dfs_session_highest_accepted"
)

// Status values for KeyStatus and error states.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusError    = "error"
	StatusUnknown  = "UNKNOWN"
)

// Placeholder sentinels. These are published values, not error conditions.
const (
	NoEntries      = "No entries found"
	NoAcceptedBids = "No accepted bids"
)

// SensorState is the unit of published output: a value plus an attribute
// bundle, both composed of normalized values only.
type SensorState struct {
	State      any            `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// States maps sensor keys to their published state.
type States map[string]SensorState

// Clone returns a shallow-per-state copy safe for concurrent readers. The
// contained values are never mutated after publication.
func (s States) Clone() States {
	out := make(States, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Snapshot is one successful cycle's published mapping, persisted so the key
// set survives restarts.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	States    States    `json:"states"`
}
