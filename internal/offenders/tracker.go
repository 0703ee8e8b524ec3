// Package offenders aggregates block history into a repeat-offender view
// for the dashboard.
package offenders

import (
	"sort"
	"sync"

	"github.com/sentinelstack/sentinel-engine/internal/models"
)

// Tracker accumulates per-source block statistics from the event stream.
type Tracker struct {
	mu      sync.RWMutex
	bySrc   map[string]*models.Offender
	maxSize int
}

// NewTracker creates a tracker bounded to maxSize distinct sources. When
// full, new sources evict the least-blocked one.
func NewTracker(maxSize int) *Tracker {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Tracker{bySrc: make(map[string]*models.Offender), maxSize: maxSize}
}

// Observe folds one block event into the aggregate. Unblock events are
// ignored: a manual pardon does not erase the history.
func (t *Tracker) Observe(event models.BlockEvent) {
	if event.Action != models.ActionBlocked {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	off, ok := t.bySrc[event.Entry.SourceID]
	if !ok {
		if len(t.bySrc) >= t.maxSize {
			t.evictSmallest()
		}
		off = &models.Offender{SourceID: event.Entry.SourceID}
		t.bySrc[event.Entry.SourceID] = off
	}

	off.BlockCount++
	if event.Entry.Score > off.MaxScore {
		off.MaxScore = event.Entry.Score
	}
	if event.Entry.BlockedAt.After(off.LastBlocked) {
		off.LastBlocked = event.Entry.BlockedAt
		off.LastReason = event.Entry.Reason
	}
}

// Top returns up to n offenders ordered by block count, then recency.
func (t *Tracker) Top(n int) []models.Offender {
	t.mu.RLock()
	offenders := make([]models.Offender, 0, len(t.bySrc))
	for _, off := range t.bySrc {
		offenders = append(offenders, *off)
	}
	t.mu.RUnlock()

	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].BlockCount != offenders[j].BlockCount {
			return offenders[i].BlockCount > offenders[j].BlockCount
		}
		return offenders[i].LastBlocked.After(offenders[j].LastBlocked)
	})

	if n > 0 && len(offenders) > n {
		offenders = offenders[:n]
	}
	return offenders
}

// evictSmallest drops the entry with the fewest blocks; caller holds the lock.
func (t *Tracker) evictSmallest() {
	var victim string
	smallest := -1
	for id, off := range t.bySrc {
		if smallest == -1 || off.BlockCount < smallest {
			smallest = off.BlockCount
			victim = id
		}
	}
	if victim != "" {
		delete(t.bySrc, victim)
	}
}
