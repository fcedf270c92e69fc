package models

// Action
const (
	StartDiscoveryAction = "start"
	StopDiscoveryAction  = "stop"
)

// DiscoveryCommand is the command consumed by the harvester service.
type DiscoveryCommand struct {
	Action string        `json:"action"`
	Data   DiscoveryData `json:"data,omitempty"`
}

// DiscoveryData selects what to discover. When everything is empty the
// harvester falls back to the pending/stale items recorded in the catalog.
type DiscoveryData struct {
	MovieIDs  []int64  `json:"movieIds,omitempty"`
	SeriesID  int64    `json:"seriesId,omitempty"`
	Season    int      `json:"season,omitempty"`
	Providers []string `json:"providers,omitempty"`
}
