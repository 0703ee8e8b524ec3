package window

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel-engine/internal/models"
)

func obsAt(sourceID string, ts time.Time) models.Observation {
	return models.Observation{
		SourceID:   sourceID,
		Endpoint:   "/",
		Timestamp:  ts,
		StatusCode: 200,
	}
}

func TestWindowKeepsOnlyRecentObservations(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()

	store.Record(obsAt("1.2.3.4", now.Add(-90*time.Second)))
	store.Record(obsAt("1.2.3.4", now.Add(-59*time.Second)))
	store.Record(obsAt("1.2.3.4", now.Add(-10*time.Second)))

	win := store.Window("1.2.3.4", now)
	if len(win) != 2 {
		t.Fatalf("expected 2 live observations, got %d", len(win))
	}
	for _, o := range win {
		if now.Sub(o.Timestamp) >= time.Minute {
			t.Fatalf("observation aged %s should have been evicted", now.Sub(o.Timestamp))
		}
	}
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	store := NewStore(time.Minute)
	now := time.Now()

	// Exactly one window old: now - ts == W, which violates now - ts < W.
	store.Record(obsAt("a", now.Add(-time.Minute)))
	if got := store.Count("a", now); got != 0 {
		t.Fatalf("observation exactly W old should be evicted, got count %d", got)
	}
}

func TestWindowUnknownSourceIsEmpty(t *testing.T) {
	store := NewStore(time.Minute)
	if win := store.Window("never-seen", time.Now()); len(win) != 0 {
		t.Fatalf("expected empty window for unknown source, got %d entries", len(win))
	}
}

func TestWindowEvictionRemovesEntries(t *testing.T) {
	store := NewStore(time.Minute)
	base := time.Now()

	for i := 0; i < 10; i++ {
		store.Record(obsAt("a", base.Add(time.Duration(i)*time.Second)))
	}
	if got := store.Count("a", base.Add(9*time.Second)); got != 10 {
		t.Fatalf("expected 10 observations, got %d", got)
	}

	// Two minutes later everything is gone and the source is dropped.
	if got := store.Count("a", base.Add(2*time.Minute)); got != 0 {
		t.Fatalf("expected drained window, got %d", got)
	}
	if got := store.SourceCount(); got != 0 {
		t.Fatalf("expected source map drained, got %d sources", got)
	}
}

func TestSweepDropsDrainedSources(t *testing.T) {
	store := NewStore(time.Minute)
	base := time.Now()

	for i := 0; i < 5; i++ {
		store.Record(obsAt(fmt.Sprintf("src-%d", i), base))
	}
	if got := store.SourceCount(); got != 5 {
		t.Fatalf("expected 5 sources, got %d", got)
	}

	store.Sweep(base.Add(2 * time.Minute))
	if got := store.SourceCount(); got != 0 {
		t.Fatalf("expected sweep to drop all sources, got %d", got)
	}
}

func TestSweepKeepsLiveEntries(t *testing.T) {
	store := NewStore(time.Minute)
	base := time.Now()

	store.Record(obsAt("a", base.Add(-90*time.Second)))
	store.Record(obsAt("a", base.Add(-5*time.Second)))

	store.Sweep(base)
	if got := store.Count("a", base); got != 1 {
		t.Fatalf("expected 1 live observation after sweep, got %d", got)
	}
}

func TestConcurrentRecordsAcrossSources(t *testing.T) {
	store := NewStore(time.Minute)
	base := time.Now()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("src-%d", g)
			for i := 0; i < 100; i++ {
				store.Record(obsAt(id, base.Add(time.Duration(i)*time.Millisecond)))
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		id := fmt.Sprintf("src-%d", g)
		if got := store.Count(id, base.Add(time.Second)); got != 100 {
			t.Fatalf("source %s: expected 100 observations, got %d", id, got)
		}
	}
}

func TestWindowSnapshotIsStable(t *testing.T) {
	store := NewStore(time.Minute)
	base := time.Now()
	store.Record(obsAt("a", base))

	win := store.Window("a", base)
	store.Record(obsAt("a", base.Add(time.Second)))

	if len(win) != 1 {
		t.Fatalf("snapshot mutated by later record: %d entries", len(win))
	}
}
