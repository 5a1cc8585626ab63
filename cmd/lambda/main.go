package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/app"
	"github.com/acme-corp/flight-ingest/internal/config"
	"github.com/acme-corp/flight-ingest/internal/logging"
	"github.com/acme-corp/flight-ingest/internal/metrics"
)

// handler ingests the object named by an EventBridge "Object Created" event.
// Everything but the source location comes from FLIGHT_INGEST_* variables.
type handler struct {
	cfg    *config.Config
	logger *zap.Logger
}

func (h *handler) handle(ctx context.Context, event events.CloudWatchEvent) (metrics.Report, error) {
	obj, err := app.ParseObjectCreated(event)
	if err != nil {
		h.logger.Error("rejecting event", zap.String("event_id", event.ID), zap.Error(err))
		return metrics.Report{}, err
	}

	cfg := *h.cfg
	cfg.Source.Type = "s3"
	cfg.Source.Bucket = obj.Bucket.Name
	cfg.Source.Key = obj.Object.Key
	if err := cfg.Validate(); err != nil {
		h.logger.Error("invalid config for event", zap.String("event_id", event.ID), zap.Error(err))
		return metrics.Report{}, err
	}

	logger := h.logger.With(zap.String("event_id", event.ID))
	logger.Info("received object created event",
		zap.String("bucket", obj.Bucket.Name),
		zap.String("key", obj.Object.Key),
		zap.Int64("size_bytes", obj.Object.Size))

	// A fresh collector per invocation; warm containers must not carry
	// counts over.
	return app.Run(ctx, &cfg, nil, metrics.NewCollector(), logger)
}

func main() {
	// Each event names its own source; it is validated in handle.
	cfg, err := config.Load(os.Getenv(config.EnvPrefix+"_CONFIG"), nil, config.WithoutSource())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	h := &handler{cfg: cfg, logger: logger}
	lambda.Start(h.handle)
}
