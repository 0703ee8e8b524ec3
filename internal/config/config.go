package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures everything needed to boot the sentinel engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Detector DetectorConfig `yaml:"detector"`
	Logging  LoggingConfig  `yaml:"logging"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DetectorConfig is the anomaly-detection policy: window geometry, scoring
// baselines and weights, and blocking behaviour.
type DetectorConfig struct {
	Window        time.Duration `yaml:"window"`
	MinSamples    int           `yaml:"minSamples"`
	Threshold     float64       `yaml:"anomalyThreshold"`
	BlockDuration time.Duration `yaml:"blockDuration"`
	HardRateCap   int           `yaml:"hardRateCap"`
	SweepInterval time.Duration `yaml:"sweepInterval"`

	BaselineRate      float64 `yaml:"baselineRate"`
	BaselineLatencyMs float64 `yaml:"baselineLatencyMs"`
	BaselineErrorRate float64 `yaml:"baselineErrorRate"`
	BaselineVariety   float64 `yaml:"baselineVariety"`

	Weights ScoreWeights `yaml:"scoreWeights"`
}

// ScoreWeights distributes scoring emphasis across the four window features.
// Must sum to 1.
type ScoreWeights struct {
	Rate    float64 `yaml:"rate"`
	Latency float64 `yaml:"latency"`
	Error   float64 `yaml:"error"`
	Variety float64 `yaml:"variety"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// MirrorConfig controls the optional Redis blocklist mirror.
type MirrorConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// AuditConfig controls the optional Postgres block-event sink.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"databaseURL"`
}

// Load initialises Config from a YAML file plus environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SENTINEL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Detector.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects detector policies that would make scoring meaningless.
func (d DetectorConfig) Validate() error {
	if d.Window <= 0 {
		return fmt.Errorf("detector window must be positive, got %s", d.Window)
	}
	if d.MinSamples < 1 {
		return fmt.Errorf("detector minSamples must be at least 1, got %d", d.MinSamples)
	}
	if d.BlockDuration <= 0 {
		return fmt.Errorf("detector blockDuration must be positive, got %s", d.BlockDuration)
	}
	if d.HardRateCap < 1 {
		return fmt.Errorf("detector hardRateCap must be at least 1, got %d", d.HardRateCap)
	}
	if d.BaselineRate <= 0 || d.BaselineLatencyMs <= 0 {
		return fmt.Errorf("detector baselines for rate and latency must be positive")
	}
	sum := d.Weights.Rate + d.Weights.Latency + d.Weights.Error + d.Weights.Variety
	if math.Abs(sum-1.0) > 1e-6 {
		return fmt.Errorf("detector score weights must sum to 1, got %.6f", sum)
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Detector: DetectorConfig{
			Window:            time.Minute,
			MinSamples:        5,
			Threshold:         2.0,
			BlockDuration:     15 * time.Minute,
			HardRateCap:       300,
			SweepInterval:     30 * time.Second,
			BaselineRate:      100,
			BaselineLatencyMs: 1000,
			BaselineErrorRate: 0.1,
			BaselineVariety:   0.3,
			Weights: ScoreWeights{
				Rate:    0.4,
				Latency: 0.3,
				Error:   0.2,
				Variety: 0.1,
			},
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Mirror:  MirrorConfig{KeyPrefix: "sentinel:blocked:"},
		Audit:   AuditConfig{},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SENTINEL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SENTINEL_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detector.Window = d
		}
	}
	if v := os.Getenv("SENTINEL_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detector.MinSamples = n
		}
	}
	if v := os.Getenv("SENTINEL_ANOMALY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.Threshold = f
		}
	}
	if v := os.Getenv("SENTINEL_BLOCK_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detector.BlockDuration = d
		}
	}
	if v := os.Getenv("SENTINEL_HARD_RATE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Detector.HardRateCap = n
		}
	}
	if v := os.Getenv("SENTINEL_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detector.SweepInterval = d
		}
	}
	if v := os.Getenv("SENTINEL_BASELINE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.BaselineRate = f
		}
	}
	if v := os.Getenv("SENTINEL_BASELINE_LATENCY_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.BaselineLatencyMs = f
		}
	}
	if v := os.Getenv("SENTINEL_BASELINE_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.BaselineErrorRate = f
		}
	}
	if v := os.Getenv("SENTINEL_BASELINE_VARIETY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.BaselineVariety = f
		}
	}
	if v := os.Getenv("SENTINEL_MIRROR_ENABLED"); v != "" {
		cfg.Mirror.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_MIRROR_ADDR"); v != "" {
		cfg.Mirror.Addr = v
	}
	if v := os.Getenv("SENTINEL_MIRROR_USERNAME"); v != "" {
		cfg.Mirror.Username = v
	}
	if v := os.Getenv("SENTINEL_MIRROR_PASSWORD"); v != "" {
		cfg.Mirror.Password = v
	}
	if v := os.Getenv("SENTINEL_MIRROR_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Mirror.DB = db
		}
	}
	if v := os.Getenv("SENTINEL_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SENTINEL_AUDIT_DATABASE_URL"); v != "" {
		cfg.Audit.DatabaseURL = v
	}
}
