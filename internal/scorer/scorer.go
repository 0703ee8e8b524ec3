// Package scorer computes anomaly scores from window snapshots. Pure
// functions of their input; no clocks, no I/O, no shared state.
package scorer

import (
	"math"
	"time"

	"github.com/sentinelstack/sentinel-engine/internal/config"
	"github.com/sentinelstack/sentinel-engine/internal/models"
)

// Features are the window statistics the score is derived from.
type Features struct {
	Samples           int
	RequestRate       float64 // observations per minute of window
	AvgResponseTimeMs float64
	ErrorRate         float64 // share of status >= 400
	EndpointVariety   float64 // distinct endpoints / samples
}

// Scorer turns a window snapshot into a normalized anomaly score by weighing
// each feature's deviation from its configured baseline.
type Scorer struct {
	window     time.Duration
	minSamples int

	baselineRate      float64
	baselineLatencyMs float64
	baselineErrorRate float64
	baselineVariety   float64
	weights           config.ScoreWeights
}

// New builds a Scorer from the detector policy.
func New(cfg config.DetectorConfig) *Scorer {
	return &Scorer{
		window:            cfg.Window,
		minSamples:        cfg.MinSamples,
		baselineRate:      cfg.BaselineRate,
		baselineLatencyMs: cfg.BaselineLatencyMs,
		baselineErrorRate: cfg.BaselineErrorRate,
		baselineVariety:   cfg.BaselineVariety,
		weights:           cfg.Weights,
	}
}

// MinSamples returns the sample floor below which no score is produced.
func (s *Scorer) MinSamples() int {
	return s.minSamples
}

// Extract computes window features from an observation snapshot. An empty
// snapshot yields zero features.
func (s *Scorer) Extract(window []models.Observation) Features {
	f := Features{Samples: len(window)}
	if len(window) == 0 {
		return f
	}

	f.RequestRate = float64(len(window)) / s.window.Minutes()

	totalLatency := 0
	errs := 0
	endpoints := make(map[string]struct{}, len(window))
	for _, obs := range window {
		totalLatency += obs.ResponseTimeMs
		if obs.StatusCode >= 400 {
			errs++
		}
		endpoints[obs.Endpoint] = struct{}{}
	}

	f.AvgResponseTimeMs = float64(totalLatency) / float64(len(window))
	f.ErrorRate = float64(errs) / float64(len(window))
	f.EndpointVariety = float64(len(endpoints)) / float64(len(window))
	return f
}

// Score computes the weighted deviation of features from baseline. Rate and
// latency are normalized against their baselines before taking the deviation
// from 1; error rate and variety are already in [0,1] and deviate from their
// baselines directly.
func (s *Scorer) Score(f Features) float64 {
	rateDeviation := math.Abs(f.RequestRate/s.baselineRate - 1.0)
	latencyDeviation := math.Abs(f.AvgResponseTimeMs/s.baselineLatencyMs - 1.0)
	errorDeviation := math.Abs(f.ErrorRate - s.baselineErrorRate)
	varietyDeviation := math.Abs(f.EndpointVariety - s.baselineVariety)

	return rateDeviation*s.weights.Rate +
		latencyDeviation*s.weights.Latency +
		errorDeviation*s.weights.Error +
		varietyDeviation*s.weights.Variety
}

// ScoreWindow extracts features and scores them in one step. Windows below
// the minimum sample size return models.ErrInsufficientData instead of a
// misleading score.
func (s *Scorer) ScoreWindow(window []models.Observation) (float64, error) {
	if len(window) < s.minSamples {
		return 0, models.ErrInsufficientData
	}
	return s.Score(s.Extract(window)), nil
}
