// Package mirror publishes the live blocklist to a Redis-compatible store so
// edge proxies and dashboards can consult it without calling the engine.
package mirror

import (
	"context"
	"time"

	"github.com/sentinelstack/sentinel-engine/internal/models"
)

// Publisher receives block-state transitions. Implementations must tolerate
// being called from a single background goroutine, never the decide path.
type Publisher interface {
	PublishBlock(ctx context.Context, entry models.BlockEntry) error
	PublishUnblock(ctx context.Context, sourceID string) error
	Close() error
}

// NoopPublisher satisfies Publisher without doing anything. Used when the
// mirror is disabled.
type NoopPublisher struct{}

// PublishBlock discards the entry.
func (NoopPublisher) PublishBlock(context.Context, models.BlockEntry) error { return nil }

// PublishUnblock discards the removal.
func (NoopPublisher) PublishUnblock(context.Context, string) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() error { return nil }

// remaining returns the TTL left on an entry, never negative.
func remaining(entry models.BlockEntry, now time.Time) time.Duration {
	ttl := entry.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
