package models

import "time"

// Observation is a single request seen by the ingress collaborator.
type Observation struct {
	SourceID       string    `json:"source_id"`
	Endpoint       string    `json:"endpoint"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs int       `json:"response_time_ms"`
	StatusCode     int       `json:"status_code"`
}

// Validate enforces the ingress boundary: malformed observations are rejected
// before they reach the decision engine.
func (o Observation) Validate() error {
	if o.SourceID == "" {
		return ErrInvalidObservation
	}
	if o.ResponseTimeMs < 0 {
		return ErrInvalidObservation
	}
	if o.StatusCode < 100 || o.StatusCode > 599 {
		return ErrInvalidObservation
	}
	return nil
}

// Decision is the per-observation verdict returned to the caller.
type Decision struct {
	SourceID string   `json:"source_id"`
	Allow    bool     `json:"allow"`
	Reason   string   `json:"reason,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// Decision reasons surfaced to callers.
const (
	ReasonBlocked     = "blocked"
	ReasonAnomaly     = "anomaly score exceeded"
	ReasonRateCap     = "rate cap exceeded"
	ReasonFailOpen    = "internal error (fail open)"
	ReasonWithinLimit = ""
)

// SourceState enumerates the per-source lifecycle of the decision engine.
type SourceState string

const (
	StateUnseen  SourceState = "unseen"
	StateTracked SourceState = "tracked"
	StateBlocked SourceState = "blocked"
)

// AnnotatedObservation pairs an observation with the decision it produced,
// kept in the recent-traffic ring for the dashboard.
type AnnotatedObservation struct {
	Observation Observation `json:"observation"`
	Allow       bool        `json:"allow"`
	Reason      string      `json:"reason,omitempty"`
}
