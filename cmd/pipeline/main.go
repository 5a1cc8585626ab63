package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/app"
	"github.com/acme-corp/flight-ingest/internal/config"
	"github.com/acme-corp/flight-ingest/internal/logging"
	"github.com/acme-corp/flight-ingest/internal/metrics"
)

func main() {
	flags := pflag.NewFlagSet("flight-ingest", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to config file (json, yaml or toml)")
	dryRun := flags.Bool("dry-run", false, "validate config and exit")
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(2)
	}

	if *dryRun {
		logger.Info("config validation passed", zap.Any("config", cfg.Redacted()))
		_ = logger.Sync()
		return
	}

	code := run(cfg, logger)
	_ = logger.Sync()
	os.Exit(code)
}

func run(cfg *config.Config, logger *zap.Logger) int {
	// Cancel on Ctrl+C or SIGTERM: reading stops, chunks in flight finish.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Warn("received signal, stopping ingestion", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
	}()

	collector := metrics.NewCollector()

	if cfg.Metrics.Addr != "" {
		srv, err := serveMetrics(cfg.Metrics.Addr, collector, logger)
		if err != nil {
			logger.Error("failed to start metrics server", zap.Error(err))
			return 1
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go reportMetrics(ctx, collector, logger)

	report, err := app.Run(ctx, cfg, nil, collector, logger)

	// Final metrics report
	if out, jsonErr := report.JSON(); jsonErr == nil {
		fmt.Println(out)
	}
	if cfg.Pipeline.Aggregate {
		for i, ac := range report.TopDepartures(cfg.Pipeline.TopAirports) {
			logger.Info("top departure airport",
				zap.Int("rank", i+1),
				zap.String("airport", ac.Airport),
				zap.Int64("flights", ac.Flights))
		}
	}

	if err != nil {
		logger.Error("ingestion failed", zap.Error(err))
		return 1
	}
	return 0
}

func serveMetrics(addr string, collector *metrics.Collector, logger *zap.Logger) (*http.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := collector.Register(reg); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return srv, nil
}

func reportMetrics(ctx context.Context, collector *metrics.Collector, logger *zap.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snap := collector.Snapshot()
			logger.Info("pipeline stats",
				zap.Int64("lines_read", snap.LinesRead),
				zap.Int64("written", snap.RecordsWritten),
				zap.Int64("parse_rejected", snap.ParseRejected),
				zap.Int64("write_rejected", snap.WriteRejected),
				zap.Float64("records_per_second", snap.Throughput))
		case <-ctx.Done():
			return
		}
	}
}
