package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
	"github.com/acme-corp/flight-ingest/internal/metrics"
	"github.com/acme-corp/flight-ingest/internal/record"
)

// WriteReport summarizes one Write call. Attempted == Written + Rejected + Failed.
type WriteReport struct {
	Attempted        int
	Written          int
	Rejected         int
	Failed           int
	SubBatches       int
	FailedSubBatches int
}

// Unwritten is the number of attempted records the store did not commit.
func (r WriteReport) Unwritten() int { return r.Rejected + r.Failed }

// BatchWriter splits records into sub-batches and inserts each one with
// unordered semantics. A failing sub-batch never stops the ones after it.
type BatchWriter struct {
	store     Store
	batchSize int
	collector *metrics.Collector
	logger    *zap.Logger
}

// NewBatchWriter creates a writer for store. batchSize <= 0 selects
// DefaultBatchSize; the effective size never exceeds store.MaxBatchSize().
// collector may be nil.
func NewBatchWriter(store Store, batchSize int, collector *metrics.Collector, logger *zap.Logger) *BatchWriter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if limit := store.MaxBatchSize(); limit > 0 && batchSize > limit {
		batchSize = limit
	}
	return &BatchWriter{
		store:     store,
		batchSize: batchSize,
		collector: collector,
		logger:    logger,
	}
}

func (w *BatchWriter) BatchSize() int { return w.batchSize }

func (w *BatchWriter) Store() Store { return w.store }

// Write inserts records in sub-batches. The returned error joins the errors of
// every sub-batch that failed outright; the report is complete either way.
func (w *BatchWriter) Write(ctx context.Context, records []record.Flight) (WriteReport, error) {
	var report WriteReport
	if len(records) == 0 {
		return report, nil
	}
	start := time.Now()

	var errs []error
	for lo := 0; lo < len(records); lo += w.batchSize {
		hi := min(lo+w.batchSize, len(records))
		batch := records[lo:hi]

		report.Attempted += len(batch)
		report.SubBatches++

		res, err := w.store.InsertMany(ctx, batch)
		if err != nil {
			report.Failed += len(batch)
			report.FailedSubBatches++
			errs = append(errs, appErrors.NewWrite(fmt.Sprintf("%s: insert of %d records", w.store.Name(), len(batch)), err))
			w.logger.Error("bulk insert failed",
				zap.String("store", w.store.Name()),
				zap.Int("records", len(batch)),
				zap.Error(err))
			continue
		}

		rejected := res.Rejected
		if res.Inserted+rejected != len(batch) {
			// Stores that cannot report per-row outcomes are trusted on
			// Inserted; the rest of the batch is counted as rejected.
			rejected = len(batch) - res.Inserted
		}
		report.Written += res.Inserted
		report.Rejected += rejected
		if rejected > 0 {
			w.logger.Warn("bulk insert partially rejected",
				zap.String("store", w.store.Name()),
				zap.Int("inserted", res.Inserted),
				zap.Int("rejected", rejected))
		}
	}

	if w.collector != nil {
		w.collector.RecordWritten(int64(report.Written))
		w.collector.RecordWriteRejected(int64(report.Unwritten()))
		w.collector.TrackStageDuration("write", time.Since(start))
	}

	w.logger.Debug("wrote chunk",
		zap.String("store", w.store.Name()),
		zap.Int("written", report.Written),
		zap.Int("rejected", report.Rejected),
		zap.Int("failed", report.Failed),
		zap.Int("sub_batches", report.SubBatches))

	return report, errors.Join(errs...)
}
