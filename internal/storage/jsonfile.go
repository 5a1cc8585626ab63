package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/acme-corp/flight-ingest/internal/record"
)

// JSONFileStore appends records as newline-delimited JSON (NDJSON).
// Used for local development and testing.
type JSONFileStore struct {
	path string
	file *os.File
	w    *bufio.Writer
	mu   sync.Mutex
}

// OpenJSONFileStore opens path for appending, creating it if needed.
func OpenJSONFileStore(path string) (*JSONFileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output file: %w", err)
	}
	return &JSONFileStore{path: path, file: f, w: bufio.NewWriter(f)}, nil
}

func (s *JSONFileStore) Name() string { return "jsonfile://" + s.path }

func (s *JSONFileStore) MaxBatchSize() int { return 0 }

// InsertMany encodes the whole batch before writing it so a marshal failure
// leaves nothing half-written.
func (s *JSONFileStore) InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error) {
	buf := make([]byte, 0, len(records)*256)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return InsertResult{}, fmt.Errorf("marshaling record %s: %w", rec.Key(), err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(buf); err != nil {
		return InsertResult{}, fmt.Errorf("writing %d records: %w", len(records), err)
	}
	return InsertResult{Inserted: len(records)}, nil
}

func (s *JSONFileStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.file.Sync()
}

func (s *JSONFileStore) Close(ctx context.Context) error {
	flushErr := s.Flush()
	if err := s.file.Close(); err != nil {
		return err
	}
	return flushErr
}
