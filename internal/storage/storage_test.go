package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
	"github.com/acme-corp/flight-ingest/internal/metrics"
	"github.com/acme-corp/flight-ingest/internal/record"
)

type mockStore struct {
	mock.Mock
	maxBatch int
}

func (m *mockStore) Name() string      { return "mock" }
func (m *mockStore) MaxBatchSize() int { return m.maxBatch }

func (m *mockStore) InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error) {
	args := m.Called(ctx, records)
	return args.Get(0).(InsertResult), args.Error(1)
}

func (m *mockStore) Close(ctx context.Context) error { return nil }

func ofLen(n int) interface{} {
	return mock.MatchedBy(func(r []record.Flight) bool { return len(r) == n })
}

func flights(n int) []record.Flight {
	out := make([]record.Flight, n)
	for i := range out {
		out[i] = record.Flight{
			Year: 2009, Month: 1, Day: 15, DayOfWeek: 4,
			AirlineCode: "AA", FlightNumber: uint16(i + 1),
			OriginAirport: "JFK", DestinationAirport: "LAX",
			ScheduledDeparture: 1200,
		}
	}
	return out
}

func TestBatchWriter_EmptyInputIsNoop(t *testing.T) {
	store := &mockStore{}
	w := NewBatchWriter(store, 10, nil, zap.NewNop())

	report, err := w.Write(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, WriteReport{}, report)
	store.AssertNotCalled(t, "InsertMany", mock.Anything, mock.Anything)
}

func TestBatchWriter_SplitsIntoSubBatches(t *testing.T) {
	store := &mockStore{}
	store.On("InsertMany", mock.Anything, ofLen(2)).Return(InsertResult{Inserted: 2}, nil).Times(2)
	store.On("InsertMany", mock.Anything, ofLen(1)).Return(InsertResult{Inserted: 1}, nil).Once()
	w := NewBatchWriter(store, 2, nil, zap.NewNop())

	report, err := w.Write(context.Background(), flights(5))

	require.NoError(t, err)
	assert.Equal(t, WriteReport{Attempted: 5, Written: 5, SubBatches: 3}, report)
	store.AssertExpectations(t)
}

func TestNewBatchWriter_BatchSize(t *testing.T) {
	testCases := []struct {
		desc       string
		configured int
		storeMax   int
		want       int
	}{
		{desc: "default", configured: 0, storeMax: 0, want: DefaultBatchSize},
		{desc: "configured", configured: 500, storeMax: 0, want: 500},
		{desc: "clamped by store", configured: DefaultBatchSize, storeMax: DynamoBatchLimit, want: DynamoBatchLimit},
		{desc: "below store limit", configured: 10, storeMax: DynamoBatchLimit, want: 10},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			w := NewBatchWriter(&mockStore{maxBatch: tC.storeMax}, tC.configured, nil, zap.NewNop())
			assert.Equal(t, tC.want, w.BatchSize())
		})
	}
}

func TestBatchWriter_PartialRejection(t *testing.T) {
	store := &mockStore{}
	store.On("InsertMany", mock.Anything, ofLen(4)).Return(InsertResult{Inserted: 3, Rejected: 1}, nil)
	collector := metrics.NewCollector()
	w := NewBatchWriter(store, 10, collector, zap.NewNop())

	report, err := w.Write(context.Background(), flights(4))

	require.NoError(t, err)
	assert.Equal(t, 3, report.Written)
	assert.Equal(t, 1, report.Rejected)
	snap := collector.Snapshot()
	assert.Equal(t, int64(3), snap.RecordsWritten)
	assert.Equal(t, int64(1), snap.WriteRejected)
}

func TestBatchWriter_LogsPartialRejection(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &mockStore{}
	store.On("InsertMany", mock.Anything, ofLen(2)).Return(InsertResult{Inserted: 1, Rejected: 1}, nil)
	w := NewBatchWriter(store, 10, nil, zap.New(core))

	_, err := w.Write(context.Background(), flights(2))

	require.NoError(t, err)
	entries := logs.FilterMessage("bulk insert partially rejected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].ContextMap()["rejected"])
}

func TestBatchWriter_FailedSubBatchDoesNotStopOthers(t *testing.T) {
	boom := errors.New("connection reset")
	store := &mockStore{}
	store.On("InsertMany", mock.Anything, ofLen(3)).Return(InsertResult{}, boom).Once()
	store.On("InsertMany", mock.Anything, ofLen(3)).Return(InsertResult{Inserted: 3}, nil).Once()
	store.On("InsertMany", mock.Anything, ofLen(1)).Return(InsertResult{Inserted: 1}, nil).Once()
	collector := metrics.NewCollector()
	w := NewBatchWriter(store, 3, collector, zap.NewNop())

	report, err := w.Write(context.Background(), flights(7))

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, appErrors.IsWrite(err))
	assert.Equal(t, WriteReport{Attempted: 7, Written: 4, Failed: 3, SubBatches: 3, FailedSubBatches: 1}, report)
	assert.Equal(t, int64(3), collector.Snapshot().WriteRejected)
	store.AssertExpectations(t)
}

func TestBatchWriter_ShortInsertResultCountsRemainderAsRejected(t *testing.T) {
	store := &mockStore{}
	store.On("InsertMany", mock.Anything, ofLen(5)).Return(InsertResult{Inserted: 2}, nil)
	w := NewBatchWriter(store, 10, nil, zap.NewNop())

	report, err := w.Write(context.Background(), flights(5))

	require.NoError(t, err)
	assert.Equal(t, 2, report.Written)
	assert.Equal(t, 3, report.Rejected)
	assert.Equal(t, report.Attempted, report.Written+report.Unwritten())
}

func TestMemoryStore_RejectsDuplicateKeys(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	res, err := store.InsertMany(ctx, flights(3))
	require.NoError(t, err)
	assert.Equal(t, InsertResult{Inserted: 3}, res)

	res, err = store.InsertMany(ctx, flights(4))
	require.NoError(t, err)
	assert.Equal(t, InsertResult{Inserted: 1, Rejected: 3}, res)
	assert.Equal(t, 4, store.Len())
	assert.Len(t, store.Records(), 4)
	assert.Equal(t, 2, store.Calls())
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().InsertMany(ctx, flights(1))

	assert.ErrorIs(t, err, context.Canceled)
}
