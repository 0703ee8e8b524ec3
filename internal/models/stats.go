package models

import "time"

// SourceStats is the dashboard view of a single tracked source.
type SourceStats struct {
	SourceID          string      `json:"source_id"`
	State             SourceState `json:"state"`
	RequestCount      int         `json:"request_count"`
	RequestRate       float64     `json:"request_rate"`
	AvgResponseTimeMs float64     `json:"avg_response_time_ms"`
	ErrorRate         float64     `json:"error_rate"`
	EndpointVariety   float64     `json:"endpoint_variety"`
	AnomalyScore      *float64    `json:"anomaly_score,omitempty"`
	IsBlocked         bool        `json:"is_blocked"`
	BlockedUntil      *time.Time  `json:"blocked_until,omitempty"`
	BlockReason       string      `json:"block_reason,omitempty"`
}

// Overview aggregates engine-wide counters for the dashboard landing view.
type Overview struct {
	TotalObservations uint64 `json:"total_observations"`
	UniqueSources     int    `json:"unique_sources"`
	BlockedSources    int    `json:"blocked_sources"`
	AllowedDecisions  uint64 `json:"allowed_decisions"`
	DeniedDecisions   uint64 `json:"denied_decisions"`
}

// Offender summarises a source that has been blocked at least once.
type Offender struct {
	SourceID    string    `json:"source_id"`
	BlockCount  int       `json:"block_count"`
	MaxScore    float64   `json:"max_score"`
	LastBlocked time.Time `json:"last_blocked"`
	LastReason  string    `json:"last_reason"`
}
