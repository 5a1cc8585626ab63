// Package storage writes parsed flight records to a downstream store.
package storage

import (
	"context"

	"github.com/acme-corp/flight-ingest/internal/record"
)

// DefaultBatchSize is the number of records sent per InsertMany call.
const DefaultBatchSize = 2000

// Store is a downstream record store that accepts unordered bulk inserts.
//
// InsertMany returns an error only when the whole request failed and nothing
// can be assumed committed. Per-record refusals (duplicate keys, constraint
// violations) are reported through InsertResult.Rejected instead.
type Store interface {
	Name() string
	MaxBatchSize() int
	InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error)
	Close(ctx context.Context) error
}

// InsertResult is the outcome of one accepted InsertMany request.
type InsertResult struct {
	Inserted int
	Rejected int
}
