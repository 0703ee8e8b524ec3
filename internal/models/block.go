package models

import "time"

// BlockEntry is a live, time-bounded denial for one source identifier.
// At most one live entry exists per source; re-blocking overwrites.
type BlockEntry struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	BlockedAt time.Time `json:"blocked_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
	Score     float64   `json:"score,omitempty"`
}

// Live reports whether the entry is still in force at the given instant.
func (b BlockEntry) Live(at time.Time) bool {
	return at.Before(b.ExpiresAt)
}

// BlockAction enumerates registry mutations worth publishing.
type BlockAction string

const (
	ActionBlocked   BlockAction = "blocked"
	ActionUnblocked BlockAction = "unblocked"
)

// BlockEvent is emitted by the decision engine whenever a source transitions
// into or out of the blocked state. Consumed off the decide path by the
// publisher (mirror, audit sink, offender tracker).
type BlockEvent struct {
	ID        string      `json:"id"`
	Action    BlockAction `json:"action"`
	Entry     BlockEntry  `json:"entry"`
	EmittedAt time.Time   `json:"emitted_at"`
}
