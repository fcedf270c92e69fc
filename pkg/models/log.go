package models

// DiscoveryLog is published to the log queue after every target attempt and
// broadcast to web panel clients.
type DiscoveryLog struct {
	Status   string `json:"status"`
	Target   Target `json:"target"`
	Provider string `json:"provider,omitempty"`
	Error    string `json:"error,omitempty"`
	Stats    *Stats `json:"stats,omitempty"`
}

// Stats is the running tally for the current batch.
type Stats struct {
	TargetsProcessed int `json:"targetsProcessed"`
	TargetsTotal     int `json:"targetsTotal"`
	SourcesFound     int `json:"sourcesFound"`
}

// SourceEvent is published for every captured source so downstream consumers
// (the streaming proxy, cache warmers) can react without polling the store.
type SourceEvent struct {
	TargetKey string            `json:"targetKey"`
	Provider  string            `json:"provider"`
	Kind      string            `json:"kind"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Subtitle  bool              `json:"subtitle"`
}
