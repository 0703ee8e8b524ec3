// Package engine hosts the decision engine: the state machine that turns
// observations into allow/block decisions.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sentinelstack/sentinel-engine/internal/config"
	"github.com/sentinelstack/sentinel-engine/internal/metrics"
	"github.com/sentinelstack/sentinel-engine/internal/models"
	"github.com/sentinelstack/sentinel-engine/internal/registry"
	"github.com/sentinelstack/sentinel-engine/internal/scorer"
	"github.com/sentinelstack/sentinel-engine/internal/window"
)

const eventBufferSize = 256

// Scorer describes the scoring behaviour the detector depends on.
type Scorer interface {
	MinSamples() int
	ScoreWindow(window []models.Observation) (float64, error)
}

// FeatureExtractor is implemented by scorers that can expose the raw window
// features behind a score, used for the per-source stats view.
type FeatureExtractor interface {
	Extract(window []models.Observation) scorer.Features
}

// Detector orchestrates the sliding-window store, the anomaly scorer and the
// block registry. Each source moves unseen -> tracked -> blocked -> tracked
// as its traffic shape demands; the blocked->tracked transition happens
// lazily when the block entry expires.
type Detector struct {
	logger   *slog.Logger
	cfg      config.DetectorConfig
	windows  *window.Store
	registry *registry.Registry
	scorer   Scorer
	clock    func() time.Time
	events   chan models.BlockEvent

	observations atomic.Uint64
	allowed      atomic.Uint64
	denied       atomic.Uint64
}

// Option customises detector construction.
type Option func(*Detector)

// WithClock overrides the wall clock, used by tests to drive expiry.
func WithClock(clock func() time.Time) Option {
	return func(d *Detector) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// New constructs a Detector around the supplied collaborators.
func New(logger *slog.Logger, cfg config.DetectorConfig, windows *window.Store, reg *registry.Registry, sc Scorer, opts ...Option) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Detector{
		logger:   logger,
		cfg:      cfg,
		windows:  windows,
		registry: reg,
		scorer:   sc,
		clock:    time.Now,
		events:   make(chan models.BlockEvent, eventBufferSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide ingests one observation and returns the verdict for it. Internal
// faults fail open: the observation is allowed and the error is surfaced via
// log and counter rather than aborting processing.
func (d *Detector) Decide(obs models.Observation) models.Decision {
	now := d.clock()
	d.observations.Add(1)

	// Blocked sources are denied outright and their windows do not grow, so
	// continued traffic never extends a block.
	if d.registry.IsBlocked(obs.SourceID, now) {
		d.denied.Add(1)
		return models.Decision{SourceID: obs.SourceID, Allow: false, Reason: models.ReasonBlocked}
	}

	d.windows.Record(obs)
	win := d.windows.Window(obs.SourceID, now)

	score, err := d.safeScore(win)
	switch {
	case err == nil:
		if score > d.cfg.Threshold {
			return d.block(obs.SourceID, models.ReasonAnomaly, score, now)
		}
	case errors.Is(err, models.ErrInsufficientData):
		// Not enough samples to score; the hard cap below still applies.
	default:
		d.logger.Error("scorer fault, failing open",
			slog.String("source_id", obs.SourceID), slog.Any("error", err))
		metrics.IncInternalError()
		d.allowed.Add(1)
		return models.Decision{SourceID: obs.SourceID, Allow: true, Reason: models.ReasonFailOpen}
	}

	// Defense in depth: a raw count cap independent of the scorer.
	if len(win) > d.cfg.HardRateCap {
		return d.block(obs.SourceID, models.ReasonRateCap, score, now)
	}

	d.allowed.Add(1)
	return models.Decision{SourceID: obs.SourceID, Allow: true}
}

func (d *Detector) block(sourceID, reason string, score float64, now time.Time) models.Decision {
	entry := d.registry.Block(sourceID, d.cfg.BlockDuration, reason, score, now)
	d.denied.Add(1)
	d.emit(models.BlockEvent{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Action:    models.ActionBlocked,
		Entry:     entry,
		EmittedAt: now,
	})
	d.logger.Info("source blocked",
		slog.String("source_id", sourceID),
		slog.String("reason", reason),
		slog.Float64("score", score),
		slog.Time("expires_at", entry.ExpiresAt))

	decision := models.Decision{SourceID: sourceID, Allow: false, Reason: reason}
	if reason == models.ReasonAnomaly {
		s := score
		decision.Score = &s
	}
	return decision
}

// safeScore shields the engine from a faulting scorer implementation.
func (d *Detector) safeScore(win []models.Observation) (score float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			score = 0
			err = fmt.Errorf("scorer panic: %v", r)
		}
	}()
	return d.scorer.ScoreWindow(win)
}

// Unblock removes any block for the source and reports whether one existed.
func (d *Detector) Unblock(sourceID string) (models.BlockEntry, bool) {
	entry, ok := d.registry.Unblock(sourceID)
	if ok {
		now := d.clock()
		d.emit(models.BlockEvent{
			ID:        uuid.Must(uuid.NewV4()).String(),
			Action:    models.ActionUnblocked,
			Entry:     entry,
			EmittedAt: now,
		})
		d.logger.Info("source unblocked", slog.String("source_id", sourceID))
	}
	return entry, ok
}

func (d *Detector) emit(event models.BlockEvent) {
	select {
	case d.events <- event:
	default:
		metrics.IncEventDropped()
	}
}

// Events exposes block/unblock transitions for out-of-band consumers.
func (d *Detector) Events() <-chan models.BlockEvent {
	return d.events
}

// Stats reports the dashboard view of one source, or ErrUnknownSource when
// the engine holds no state for it.
func (d *Detector) Stats(sourceID string) (models.SourceStats, error) {
	now := d.clock()
	win := d.windows.Window(sourceID, now)
	entry, blocked := d.registry.Get(sourceID, now)

	if len(win) == 0 && !blocked {
		return models.SourceStats{}, models.ErrUnknownSource
	}

	stats := models.SourceStats{
		SourceID:     sourceID,
		State:        models.StateTracked,
		RequestCount: len(win),
		IsBlocked:    blocked,
	}

	if extractor, ok := d.scorer.(FeatureExtractor); ok {
		f := extractor.Extract(win)
		stats.RequestRate = f.RequestRate
		stats.AvgResponseTimeMs = f.AvgResponseTimeMs
		stats.ErrorRate = f.ErrorRate
		stats.EndpointVariety = f.EndpointVariety
	}
	if score, err := d.scorer.ScoreWindow(win); err == nil {
		stats.AnomalyScore = &score
	}

	if blocked {
		stats.State = models.StateBlocked
		until := entry.ExpiresAt
		stats.BlockedUntil = &until
		stats.BlockReason = entry.Reason
	}
	return stats, nil
}

// Overview aggregates engine-wide counters.
func (d *Detector) Overview() models.Overview {
	now := d.clock()
	return models.Overview{
		TotalObservations: d.observations.Load(),
		UniqueSources:     d.windows.SourceCount(),
		BlockedSources:    len(d.registry.ListBlocked(now)),
		AllowedDecisions:  d.allowed.Load(),
		DeniedDecisions:   d.denied.Load(),
	}
}

// ListBlocked returns all live block entries.
func (d *Detector) ListBlocked() []models.BlockEntry {
	return d.registry.ListBlocked(d.clock())
}

// Sweep ages out windows and expired blocks, refreshing the blocked gauge.
func (d *Detector) Sweep() {
	now := d.clock()
	d.windows.Sweep(now)
	live := d.registry.Sweep(now)
	metrics.SetBlockedSources(live)
}
