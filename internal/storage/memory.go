package storage

import (
	"context"
	"sync"

	"github.com/acme-corp/flight-ingest/internal/record"
)

// MemoryStore keeps records in memory, keyed by Flight.Key. A record whose
// key is already present is rejected, like a unique index would.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]record.Flight
	calls   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record.Flight)}
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) MaxBatchSize() int { return 0 }

func (m *MemoryStore) InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return InsertResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	var res InsertResult
	for _, rec := range records {
		key := rec.Key()
		if _, dup := m.records[key]; dup {
			res.Rejected++
			continue
		}
		m.records[key] = rec
		res.Inserted++
	}
	return res, nil
}

func (m *MemoryStore) Close(ctx context.Context) error { return nil }

// Len is the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Calls is the number of InsertMany requests served.
func (m *MemoryStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Records returns a copy of the stored records in no particular order.
func (m *MemoryStore) Records() []record.Flight {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]record.Flight, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out
}
