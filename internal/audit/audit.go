// Package audit persists block-state transitions to Postgres for
// after-the-fact review. The sink is an event log, not engine state: the
// detector never reads it back.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinelstack/sentinel-engine/internal/models"
	"github.com/sentinelstack/sentinel-engine/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS block_events (
    id          uuid PRIMARY KEY,
    action      text NOT NULL,
    source_id   text NOT NULL,
    reason      text NOT NULL DEFAULT '',
    score       double precision NOT NULL DEFAULT 0,
    blocked_at  timestamptz,
    expires_at  timestamptz,
    emitted_at  timestamptz NOT NULL,
    recorded_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS block_events_source_idx ON block_events (source_id, emitted_at DESC);
`

// Sink writes block events into Postgres.
type Sink struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against the given URL, pings it, and ensures the
// event table exists.
func Connect(ctx context.Context, databaseURL string) (*Sink, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, utils.NewAppError("audit.connect", "invalid database URL", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, utils.NewAppError("audit.connect", "pool creation failed", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, utils.NewAppError("audit.connect", "database unreachable", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, utils.NewAppError("audit.connect", "schema setup failed", err)
	}

	return &Sink{pool: pool}, nil
}

// Record appends one block event.
func (s *Sink) Record(ctx context.Context, event models.BlockEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO block_events (id, action, source_id, reason, score, blocked_at, expires_at, emitted_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, event.ID, string(event.Action), event.Entry.SourceID, event.Entry.Reason,
		event.Entry.Score, nullableTime(event.Entry.BlockedAt), nullableTime(event.Entry.ExpiresAt), event.EmittedAt)
	if err != nil {
		return utils.NewAppError("audit.record", "insert failed", err)
	}
	return nil
}

// Close releases the pool.
func (s *Sink) Close() {
	s.pool.Close()
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
