// Package registry tracks time-bounded blocks per source identifier.
package registry

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sentinelstack/sentinel-engine/internal/models"
)

const defaultShardCount = 32

// Registry maps source identifiers to block entries. Sharded like the window
// store so a sweep never stalls unrelated lookups behind a global lock.
type Registry struct {
	shards []*shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]models.BlockEntry
}

// New creates an empty Registry.
func New() *Registry {
	return NewWithShards(defaultShardCount)
}

// NewWithShards creates a Registry with an explicit shard count.
func NewWithShards(shardCount int) *Registry {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]models.BlockEntry)}
	}
	return &Registry{shards: shards}
}

func (r *Registry) shardFor(sourceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return r.shards[int(h.Sum32())%len(r.shards)]
}

// Block inserts or overwrites the entry for the source so that it expires at
// at+duration. Idempotent: re-blocking resets the expiry, never stacks.
func (r *Registry) Block(sourceID string, duration time.Duration, reason string, score float64, at time.Time) models.BlockEntry {
	entry := models.BlockEntry{
		ID:        uuid.Must(uuid.NewV4()).String(),
		SourceID:  sourceID,
		BlockedAt: at,
		ExpiresAt: at.Add(duration),
		Reason:    reason,
		Score:     score,
	}

	sh := r.shardFor(sourceID)
	sh.mu.Lock()
	sh.entries[sourceID] = entry
	sh.mu.Unlock()
	return entry
}

// IsBlocked reports whether a live entry exists at the given instant,
// lazily deleting an expired one when found.
func (r *Registry) IsBlocked(sourceID string, at time.Time) bool {
	_, blocked := r.Get(sourceID, at)
	return blocked
}

// Get returns the live entry for the source, if any. Expired entries are
// removed on the way out.
func (r *Registry) Get(sourceID string, at time.Time) (models.BlockEntry, bool) {
	sh := r.shardFor(sourceID)

	sh.mu.RLock()
	entry, ok := sh.entries[sourceID]
	sh.mu.RUnlock()
	if !ok {
		return models.BlockEntry{}, false
	}
	if entry.Live(at) {
		return entry, true
	}

	sh.mu.Lock()
	// Re-check under the write lock; the entry may have been replaced.
	if current, ok := sh.entries[sourceID]; ok && !current.Live(at) {
		delete(sh.entries, sourceID)
	}
	sh.mu.Unlock()
	return models.BlockEntry{}, false
}

// Unblock removes the entry unconditionally and returns it when present.
func (r *Registry) Unblock(sourceID string) (models.BlockEntry, bool) {
	sh := r.shardFor(sourceID)
	sh.mu.Lock()
	entry, ok := sh.entries[sourceID]
	if ok {
		delete(sh.entries, sourceID)
	}
	sh.mu.Unlock()
	return entry, ok
}

// Sweep removes every entry expired at the given instant and returns the
// number of live entries remaining. Keeps registry size bounded even when
// nothing looks the expired sources up.
func (r *Registry) Sweep(at time.Time) int {
	live := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for id, entry := range sh.entries {
			if !entry.Live(at) {
				delete(sh.entries, id)
				continue
			}
			live++
		}
		sh.mu.Unlock()
	}
	return live
}

// ListBlocked returns all live entries at the given instant, ordered by
// source id for stable output.
func (r *Registry) ListBlocked(at time.Time) []models.BlockEntry {
	var entries []models.BlockEntry
	for _, sh := range r.shards {
		sh.mu.RLock()
		for _, entry := range sh.entries {
			if entry.Live(at) {
				entries = append(entries, entry)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SourceID < entries[j].SourceID
	})
	return entries
}
