package ingestion

import (
	"context"
	"io"
)

// Source is an object that can be streamed as text. Each Open starts a fresh
// read from the beginning of the object.
type Source interface {
	// Name returns a human-readable identifier for logging/metrics.
	Name() string

	// Open returns a stream over the object's bytes. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
}
