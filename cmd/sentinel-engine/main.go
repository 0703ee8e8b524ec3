package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelstack/sentinel-engine/internal/api"
	"github.com/sentinelstack/sentinel-engine/internal/audit"
	"github.com/sentinelstack/sentinel-engine/internal/config"
	"github.com/sentinelstack/sentinel-engine/internal/engine"
	"github.com/sentinelstack/sentinel-engine/internal/metrics"
	"github.com/sentinelstack/sentinel-engine/internal/mirror"
	"github.com/sentinelstack/sentinel-engine/internal/registry"
	"github.com/sentinelstack/sentinel-engine/internal/scorer"
	"github.com/sentinelstack/sentinel-engine/internal/services"
	"github.com/sentinelstack/sentinel-engine/internal/utils"
	"github.com/sentinelstack/sentinel-engine/internal/window"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting sentinel-engine",
		slog.String("address", cfg.Server.Address),
		slog.Duration("window", cfg.Detector.Window))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var blocklistMirror mirror.Publisher = mirror.NoopPublisher{}
	if cfg.Mirror.Enabled && cfg.Mirror.Addr != "" {
		publisher, err := mirror.NewRedisPublisher(ctx, cfg.Mirror)
		if err != nil {
			logger.Warn("blocklist mirror unavailable", slog.Any("error", err))
		} else {
			blocklistMirror = publisher
			defer publisher.Close()
		}
	}

	var auditSink services.AuditSink
	if cfg.Audit.Enabled && cfg.Audit.DatabaseURL != "" {
		sink, err := audit.Connect(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			logger.Warn("audit sink unavailable", slog.Any("error", err))
		} else {
			auditSink = sink
			defer sink.Close()
		}
	}

	windows := window.NewStore(cfg.Detector.Window)
	blockRegistry := registry.New()
	anomalyScorer := scorer.New(cfg.Detector)
	detector := engine.New(logger, cfg.Detector, windows, blockRegistry, anomalyScorer)

	monitor := services.NewMonitorService(logger, detector, blocklistMirror, auditSink, cfg.Detector.SweepInterval)
	go monitor.RunSweeper(ctx)
	go monitor.RunPublisher(ctx)

	server, err := api.NewServer(cfg.Server, api.NewHandler(logger, monitor))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("sentinel-engine stopped")
}
