package scorer

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sentinelstack/sentinel-engine/internal/config"
	"github.com/sentinelstack/sentinel-engine/internal/models"
)

func testPolicy() config.DetectorConfig {
	return config.DetectorConfig{
		Window:            time.Minute,
		MinSamples:        5,
		Threshold:         2.0,
		BlockDuration:     15 * time.Minute,
		HardRateCap:       300,
		BaselineRate:      100,
		BaselineLatencyMs: 1000,
		BaselineErrorRate: 0.1,
		BaselineVariety:   0.3,
		Weights:           config.ScoreWeights{Rate: 0.4, Latency: 0.3, Error: 0.2, Variety: 0.1},
	}
}

func makeWindow(n int, endpoint string, latencyMs, status int) []models.Observation {
	base := time.Now()
	window := make([]models.Observation, 0, n)
	for i := 0; i < n; i++ {
		ep := endpoint
		if ep == "" {
			ep = fmt.Sprintf("/page-%d", i)
		}
		window = append(window, models.Observation{
			SourceID:       "src",
			Endpoint:       ep,
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			ResponseTimeMs: latencyMs,
			StatusCode:     status,
		})
	}
	return window
}

func TestExtractFeatures(t *testing.T) {
	s := New(testPolicy())

	window := makeWindow(10, "", 50, 200)
	window[0].StatusCode = 500
	window[1].StatusCode = 404

	f := s.Extract(window)
	if f.Samples != 10 {
		t.Fatalf("samples = %d, want 10", f.Samples)
	}
	if f.RequestRate != 10 {
		t.Fatalf("rate = %f, want 10 per minute", f.RequestRate)
	}
	if f.AvgResponseTimeMs != 50 {
		t.Fatalf("avg latency = %f, want 50", f.AvgResponseTimeMs)
	}
	if math.Abs(f.ErrorRate-0.2) > 1e-9 {
		t.Fatalf("error rate = %f, want 0.2", f.ErrorRate)
	}
	if f.EndpointVariety != 1.0 {
		t.Fatalf("variety = %f, want 1.0", f.EndpointVariety)
	}
}

func TestExtractEmptyWindow(t *testing.T) {
	s := New(testPolicy())
	f := s.Extract(nil)
	if f.Samples != 0 || f.RequestRate != 0 || f.AvgResponseTimeMs != 0 || f.ErrorRate != 0 || f.EndpointVariety != 0 {
		t.Fatalf("empty window should yield zero features, got %+v", f)
	}
}

func TestScoreWindowInsufficientData(t *testing.T) {
	s := New(testPolicy())
	_, err := s.ScoreWindow(makeWindow(4, "", 50, 200))
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestScoreBenignBrowsingIsLow(t *testing.T) {
	s := New(testPolicy())

	// Six varied-endpoint requests in a minute, 50ms each, no errors.
	score, err := s.ScoreWindow(makeWindow(6, "", 50, 200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// rate |6/100-1|*0.4 + latency |50/1000-1|*0.3 + error |0-0.1|*0.2 + variety |1-0.3|*0.1
	want := 0.94*0.4 + 0.95*0.3 + 0.1*0.2 + 0.7*0.1
	if math.Abs(score-want) > 1e-9 {
		t.Fatalf("score = %f, want %f", score, want)
	}
	if score > 2.0 {
		t.Fatalf("benign browsing scored anomalous: %f", score)
	}
}

func TestScoreFloodAgainstTightBaselineIsHigh(t *testing.T) {
	cfg := testPolicy()
	cfg.BaselineRate = 2
	s := New(cfg)

	// Twenty hits on one endpoint at 10ms against a 2/min baseline.
	score, err := s.ScoreWindow(makeWindow(20, "/login", 10, 200))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score <= 2.0 {
		t.Fatalf("flood should exceed threshold, got %f", score)
	}
}

func TestScoreIsPure(t *testing.T) {
	s := New(testPolicy())
	window := makeWindow(8, "", 120, 200)

	first, err := s.ScoreWindow(window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.ScoreWindow(window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("scoring mutated state: %f != %f", first, second)
	}
}
