// Package services exposes the monitor facade consumed by the HTTP layer
// and runs the background loops around the decision engine.
package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sentinelstack/sentinel-engine/internal/engine"
	"github.com/sentinelstack/sentinel-engine/internal/metrics"
	"github.com/sentinelstack/sentinel-engine/internal/mirror"
	"github.com/sentinelstack/sentinel-engine/internal/models"
	"github.com/sentinelstack/sentinel-engine/internal/offenders"
	"github.com/sentinelstack/sentinel-engine/internal/utils"
)

const (
	defaultRecentCapacity = 500
	publishTimeout        = 2 * time.Second
)

// AuditSink persists block events; nil disables auditing.
type AuditSink interface {
	Record(ctx context.Context, event models.BlockEvent) error
}

// MonitorService fronts the detector for the API layer and owns the
// off-path consumers of its event stream.
type MonitorService struct {
	logger        *slog.Logger
	detector      *engine.Detector
	mirror        mirror.Publisher
	audit         AuditSink
	offenders     *offenders.Tracker
	latencies     *utils.LatencyTracker
	sweepInterval time.Duration

	mu     sync.RWMutex
	recent []models.AnnotatedObservation
}

// NewMonitorService wires the facade. mirrorPub may be nil (treated as noop)
// and auditSink may be nil (auditing disabled).
func NewMonitorService(logger *slog.Logger, detector *engine.Detector, mirrorPub mirror.Publisher, auditSink AuditSink, sweepInterval time.Duration) *MonitorService {
	if logger == nil {
		logger = slog.Default()
	}
	if mirrorPub == nil {
		mirrorPub = mirror.NoopPublisher{}
	}
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &MonitorService{
		logger:        logger,
		detector:      detector,
		mirror:        mirrorPub,
		audit:         auditSink,
		offenders:     offenders.NewTracker(0),
		latencies:     utils.NewLatencyTracker(1024),
		sweepInterval: sweepInterval,
	}
}

// Observe validates an observation, runs it through the decision engine and
// returns the verdict. Malformed input is rejected here and never reaches
// the engine.
func (s *MonitorService) Observe(obs models.Observation) (models.Decision, error) {
	if err := obs.Validate(); err != nil {
		return models.Decision{}, err
	}

	start := time.Now()
	decision := s.detector.Decide(obs)
	duration := time.Since(start)

	metrics.ObserveDecision(duration, outcomeLabel(decision))
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= 100 && count%100 == 0 {
		s.logger.Debug("decision latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	s.remember(obs, decision)
	return decision, nil
}

func (s *MonitorService) remember(obs models.Observation, decision models.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, models.AnnotatedObservation{
		Observation: obs,
		Allow:       decision.Allow,
		Reason:      decision.Reason,
	})
	if len(s.recent) > defaultRecentCapacity {
		s.recent = s.recent[len(s.recent)-defaultRecentCapacity:]
	}
}

// Recent returns up to n of the most recent observations, newest first.
func (s *MonitorService) Recent(n int) []models.AnnotatedObservation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.recent) {
		n = len(s.recent)
	}
	out := make([]models.AnnotatedObservation, 0, n)
	for i := len(s.recent) - 1; i >= len(s.recent)-n; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Stats returns the dashboard view of one source.
func (s *MonitorService) Stats(sourceID string) (models.SourceStats, error) {
	return s.detector.Stats(sourceID)
}

// Overview returns engine-wide aggregate counters.
func (s *MonitorService) Overview() models.Overview {
	return s.detector.Overview()
}

// ListBlocked returns all live block entries.
func (s *MonitorService) ListBlocked() []models.BlockEntry {
	return s.detector.ListBlocked()
}

// Unblock lifts a block manually. Reports whether an entry existed.
func (s *MonitorService) Unblock(sourceID string) bool {
	_, ok := s.detector.Unblock(sourceID)
	return ok
}

// Offenders returns the top-n repeat offenders.
func (s *MonitorService) Offenders(n int) []models.Offender {
	return s.offenders.Top(n)
}

// RunSweeper ages out windows and expired blocks on a fixed schedule until
// the context is cancelled.
func (s *MonitorService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.detector.Sweep()
		}
	}
}

// RunPublisher drains the detector's block events into the mirror, the audit
// sink and the offender tracker. Runs until the context is cancelled; all
// publishing happens here, off the decide path.
func (s *MonitorService) RunPublisher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.detector.Events():
			s.publish(ctx, event)
		}
	}
}

func (s *MonitorService) publish(ctx context.Context, event models.BlockEvent) {
	s.offenders.Observe(event)

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	var err error
	switch event.Action {
	case models.ActionBlocked:
		err = s.mirror.PublishBlock(pubCtx, event.Entry)
	case models.ActionUnblocked:
		err = s.mirror.PublishUnblock(pubCtx, event.Entry.SourceID)
	}
	if err != nil {
		s.logger.Warn("blocklist mirror publish failed", slog.Any("error", err))
	}

	if s.audit != nil {
		if err := s.audit.Record(pubCtx, event); err != nil {
			s.logger.Warn("audit record failed",
				slog.String("event_id", event.ID), slog.Any("error", err))
		}
	}
}

func outcomeLabel(decision models.Decision) string {
	switch decision.Reason {
	case models.ReasonBlocked:
		return metrics.OutcomeBlocked
	case models.ReasonAnomaly:
		return metrics.OutcomeAnomaly
	case models.ReasonRateCap:
		return metrics.OutcomeRateCap
	case models.ReasonFailOpen:
		return metrics.OutcomeFailOpen
	default:
		return metrics.OutcomeAllowed
	}
}
