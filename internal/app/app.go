// Package app assembles an ingestion run from configuration. Both the CLI
// and the Lambda handler go through Run.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/config"
	"github.com/acme-corp/flight-ingest/internal/deadletter"
	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
	"github.com/acme-corp/flight-ingest/internal/ingestion"
	"github.com/acme-corp/flight-ingest/internal/metrics"
	"github.com/acme-corp/flight-ingest/internal/pipeline"
	"github.com/acme-corp/flight-ingest/internal/storage"
	"github.com/acme-corp/flight-ingest/internal/transform"
)

const closeTimeout = 10 * time.Second

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// NewSource builds the configured source, wrapped for decompression.
func NewSource(ctx context.Context, cfg config.SourceConfig, logger *zap.Logger) (ingestion.Source, error) {
	var src ingestion.Source
	switch cfg.Type {
	case "file":
		src = ingestion.NewFileSource(cfg.Path)
	case "s3":
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, appErrors.NewSourceUnavailable("s3 client", err)
		}
		src = ingestion.NewS3Source(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Key, logger)
	default:
		return nil, appErrors.NewConfig(fmt.Sprintf("unsupported source type %q", cfg.Type), nil)
	}
	return ingestion.Decompressed(src, ingestion.Compression(cfg.Compression)), nil
}

// NewStore connects the configured store. With retry_attempts > 0 the store
// is wrapped in a RetryStore.
func NewStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)

	switch cfg.Type {
	case "mongodb":
		store, err = storage.ConnectMongo(ctx, cfg.URI, cfg.Database, cfg.Collection, logger)
	case "postgres":
		var pg *storage.PostgresStore
		pg, err = storage.ConnectPostgres(ctx, cfg.URI, cfg.Table, cfg.MaxConns, logger)
		if err == nil && cfg.EnsureSchema {
			if err = pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close(ctx)
			}
		}
		store = pg
	case "dynamodb":
		var awsCfg aws.Config
		awsCfg, err = loadAWSConfig(ctx, cfg.Region)
		if err == nil {
			store = storage.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), storage.DefaultDynamoConfig(cfg.Table), logger)
		}
	case "jsonfile":
		store, err = storage.OpenJSONFileStore(cfg.Path)
	case "memory":
		store = storage.NewMemoryStore()
	default:
		return nil, appErrors.NewConfig(fmt.Sprintf("unsupported store type %q", cfg.Type), nil)
	}
	if err != nil {
		return nil, appErrors.NewWrite("opening "+cfg.Type+" store", err)
	}

	if cfg.RetryAttempts > 0 {
		store = storage.NewRetryStore(store, cfg.RetryAttempts, cfg.RetryDelay, logger)
	}
	return store, nil
}

// openSink opens the dead-letter file. A file that cannot be opened is
// logged and the run goes on without one.
func openSink(path string, logger *zap.Logger) *deadletter.Sink {
	if path == "" {
		return nil
	}
	sink, err := deadletter.Open(path, logger)
	if err != nil {
		logger.Error("dead-letter file unavailable, rejected rows will only be counted",
			zap.String("path", path),
			zap.Error(err))
		return nil
	}
	return sink
}

// Run wires source, processor, writer and sink from cfg and executes one
// ingestion. source may be nil, in which case it is built from cfg.Source.
func Run(ctx context.Context, cfg *config.Config, source ingestion.Source, collector *metrics.Collector, logger *zap.Logger) (metrics.Report, error) {
	if source == nil {
		var err error
		if source, err = NewSource(ctx, cfg.Source, logger); err != nil {
			return metrics.Report{}, err
		}
	}

	store, err := NewStore(ctx, cfg.Store, logger)
	if err != nil {
		return metrics.Report{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("closing store", zap.String("store", store.Name()), zap.Error(err))
		}
	}()

	opts := pipeline.Options{
		ChunkSize:   cfg.Pipeline.ChunkSize,
		MaxInFlight: cfg.Pipeline.MaxInFlight,
		Timeout:     cfg.Pipeline.Timeout,
	}
	if sink := openSink(cfg.Pipeline.ErrorFile, logger); sink != nil {
		opts.Sink = sink
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Error("closing dead-letter file", zap.String("path", sink.Path()), zap.Error(err))
			}
		}()
	}

	processor := transform.NewChunkProcessor(cfg.Pipeline.Workers, cfg.Pipeline.Delimiter, cfg.Pipeline.Aggregate, collector, logger)
	writer := storage.NewBatchWriter(store, cfg.Store.BatchSize, collector, logger)

	coord := pipeline.New(source, processor, writer, collector, logger, opts)
	logger.Info("run configured",
		zap.String("run_id", coord.RunID()),
		zap.String("store", store.Name()),
		zap.Int("batch_size", writer.BatchSize()))

	return coord.Run(ctx)
}
