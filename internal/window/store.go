// Package window maintains per-source sliding windows of recent observations.
package window

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/sentinelstack/sentinel-engine/internal/models"
)

const defaultShardCount = 32

// Store holds a trailing time window of observations per source identifier.
// State is sharded by source id hash so concurrent records for unrelated
// sources never contend on the same lock.
type Store struct {
	window time.Duration
	shards []*shard
}

type shard struct {
	mu      sync.RWMutex
	sources map[string][]models.Observation
}

// NewStore creates a Store keeping observations for the given trailing window.
func NewStore(window time.Duration) *Store {
	return NewStoreWithShards(window, defaultShardCount)
}

// NewStoreWithShards creates a Store with an explicit shard count.
func NewStoreWithShards(window time.Duration, shardCount int) *Store {
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{sources: make(map[string][]models.Observation)}
	}
	return &Store{window: window, shards: shards}
}

// Duration returns the trailing window length.
func (s *Store) Duration() time.Duration {
	return s.window
}

func (s *Store) shardFor(sourceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sourceID))
	return s.shards[int(h.Sum32())%len(s.shards)]
}

// Record appends an observation to its source's window.
func (s *Store) Record(obs models.Observation) {
	sh := s.shardFor(obs.SourceID)
	sh.mu.Lock()
	sh.sources[obs.SourceID] = append(sh.sources[obs.SourceID], obs)
	sh.mu.Unlock()
}

// Window returns all observations for the source still inside the trailing
// window at the given instant, evicting aged-out entries as a side effect.
// Unknown sources yield an empty window.
func (s *Store) Window(sourceID string, at time.Time) []models.Observation {
	sh := s.shardFor(sourceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	entries, ok := sh.sources[sourceID]
	if !ok {
		return nil
	}

	live := prune(entries, at.Add(-s.window))
	if len(live) == 0 {
		delete(sh.sources, sourceID)
		return nil
	}
	sh.sources[sourceID] = live

	snapshot := make([]models.Observation, len(live))
	copy(snapshot, live)
	return snapshot
}

// Count returns the number of live observations for the source.
func (s *Store) Count(sourceID string, at time.Time) int {
	return len(s.Window(sourceID, at))
}

// Sweep evicts aged-out observations across all sources, dropping sources
// whose windows drained empty. Called periodically so the store stays
// bounded even for sources that stop sending traffic.
func (s *Store) Sweep(at time.Time) {
	cutoff := at.Add(-s.window)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, entries := range sh.sources {
			live := prune(entries, cutoff)
			if len(live) == 0 {
				delete(sh.sources, id)
				continue
			}
			sh.sources[id] = live
		}
		sh.mu.Unlock()
	}
}

// SourceCount returns the number of sources with at least one stored
// observation, expired or not. Sweep keeps this honest over time.
func (s *Store) SourceCount() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.sources)
		sh.mu.RUnlock()
	}
	return total
}

// prune drops leading entries at or before the cutoff. Observations arrive in
// near-chronological order, so a single forward scan suffices; any stragglers
// recorded out of order are handled by scanning the remainder too.
func prune(entries []models.Observation, cutoff time.Time) []models.Observation {
	live := entries[:0:0]
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			live = append(live, e)
		}
	}
	return live
}
