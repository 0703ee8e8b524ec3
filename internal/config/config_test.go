package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Errorf("server address = %s, want :8080", cfg.Server.Address)
	}
	if cfg.Detector.Window != time.Minute {
		t.Errorf("window = %s, want 1m", cfg.Detector.Window)
	}
	if cfg.Detector.MinSamples != 5 {
		t.Errorf("minSamples = %d, want 5", cfg.Detector.MinSamples)
	}
	if cfg.Detector.Threshold != 2.0 {
		t.Errorf("threshold = %v, want 2.0", cfg.Detector.Threshold)
	}
	if cfg.Detector.BlockDuration != 15*time.Minute {
		t.Errorf("blockDuration = %s, want 15m", cfg.Detector.BlockDuration)
	}
	if cfg.Detector.Weights.Rate != 0.4 || cfg.Detector.Weights.Variety != 0.1 {
		t.Errorf("unexpected default weights: %+v", cfg.Detector.Weights)
	}
	if cfg.Mirror.Enabled {
		t.Errorf("mirror should be disabled by default")
	}
	if cfg.Mirror.KeyPrefix != "sentinel:blocked:" {
		t.Errorf("mirror key prefix = %q", cfg.Mirror.KeyPrefix)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  address: ":9000"
detector:
  window: 30s
  minSamples: 3
  anomalyThreshold: 1.5
  blockDuration: 5m
  baselineRate: 50
logging:
  level: debug
  json: true
mirror:
  enabled: true
  addr: "localhost:6379"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Errorf("server address = %s, want :9000", cfg.Server.Address)
	}
	if cfg.Detector.Window != 30*time.Second {
		t.Errorf("window = %s, want 30s", cfg.Detector.Window)
	}
	if cfg.Detector.MinSamples != 3 {
		t.Errorf("minSamples = %d, want 3", cfg.Detector.MinSamples)
	}
	if cfg.Detector.Threshold != 1.5 {
		t.Errorf("threshold = %v, want 1.5", cfg.Detector.Threshold)
	}
	if cfg.Detector.BaselineRate != 50 {
		t.Errorf("baselineRate = %v, want 50", cfg.Detector.BaselineRate)
	}
	// Unset fields keep defaults.
	if cfg.Detector.HardRateCap != 300 {
		t.Errorf("hardRateCap = %d, want default 300", cfg.Detector.HardRateCap)
	}
	if !cfg.Logging.JSON || cfg.Logging.Level != "debug" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	if !cfg.Mirror.Enabled || cfg.Mirror.Addr != "localhost:6379" {
		t.Errorf("unexpected mirror config: %+v", cfg.Mirror)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_SERVER_ADDRESS", ":7070")
	t.Setenv("SENTINEL_WINDOW", "45s")
	t.Setenv("SENTINEL_ANOMALY_THRESHOLD", "3.5")
	t.Setenv("SENTINEL_MIN_SAMPLES", "10")
	t.Setenv("SENTINEL_BASELINE_RATE", "25")
	t.Setenv("SENTINEL_MIRROR_ENABLED", "true")
	t.Setenv("SENTINEL_LOG_FORMAT", "json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("server address = %s, want :7070", cfg.Server.Address)
	}
	if cfg.Detector.Window != 45*time.Second {
		t.Errorf("window = %s, want 45s", cfg.Detector.Window)
	}
	if cfg.Detector.Threshold != 3.5 {
		t.Errorf("threshold = %v, want 3.5", cfg.Detector.Threshold)
	}
	if cfg.Detector.MinSamples != 10 {
		t.Errorf("minSamples = %d, want 10", cfg.Detector.MinSamples)
	}
	if cfg.Detector.BaselineRate != 25 {
		t.Errorf("baselineRate = %v, want 25", cfg.Detector.BaselineRate)
	}
	if !cfg.Mirror.Enabled {
		t.Error("mirror should be enabled via env")
	}
	if !cfg.Logging.JSON {
		t.Error("logging should be JSON via env")
	}
}

func TestDetectorValidate(t *testing.T) {
	base := defaultConfig().Detector

	cases := []struct {
		name   string
		mutate func(*DetectorConfig)
	}{
		{"zero window", func(d *DetectorConfig) { d.Window = 0 }},
		{"zero minSamples", func(d *DetectorConfig) { d.MinSamples = 0 }},
		{"zero blockDuration", func(d *DetectorConfig) { d.BlockDuration = 0 }},
		{"zero hardRateCap", func(d *DetectorConfig) { d.HardRateCap = 0 }},
		{"zero baselineRate", func(d *DetectorConfig) { d.BaselineRate = 0 }},
		{"weights off balance", func(d *DetectorConfig) { d.Weights.Rate = 0.9 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			tc.mutate(&d)
			if err := d.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("default detector config should validate: %v", err)
	}
}
