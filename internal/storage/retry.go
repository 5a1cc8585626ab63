package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/record"
)

// RetryStore wraps a Store with exponential backoff for requests that failed
// outright. Partial rejections are returned as-is; resending rows the store
// already refused would only be refused again.
type RetryStore struct {
	inner      Store
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func NewRetryStore(inner Store, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *RetryStore {
	return &RetryStore{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

func (r *RetryStore) Name() string { return r.inner.Name() }

func (r *RetryStore) MaxBatchSize() int { return r.inner.MaxBatchSize() }

func (r *RetryStore) InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		res, err := r.inner.InsertMany(ctx, records)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt == r.maxRetries {
			break
		}

		delay := r.baseDelay * time.Duration(1<<uint(attempt))
		r.logger.Warn("insert attempt failed, retrying",
			zap.String("store", r.inner.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", r.maxRetries+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return InsertResult{}, ctx.Err()
		}
	}

	return InsertResult{}, fmt.Errorf("insert failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *RetryStore) Close(ctx context.Context) error { return r.inner.Close(ctx) }
