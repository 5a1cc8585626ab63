package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/record"
)

// PgxConn is the part of *pgxpool.Pool used by PostgresStore.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ PgxConn = (*pgxpool.Pool)(nil)

const createFlightTable = `
CREATE TABLE IF NOT EXISTS %s (
	id                    UUID PRIMARY KEY,
	year                  INTEGER NOT NULL,
	month                 SMALLINT NOT NULL,
	day                   SMALLINT NOT NULL,
	day_of_week           SMALLINT NOT NULL,
	scheduled_departure   INTEGER,
	actual_departure      INTEGER,
	scheduled_arrival     INTEGER,
	actual_arrival        INTEGER,
	airline_code          TEXT,
	flight_number         INTEGER,
	aircraft_registration TEXT,
	scheduled_flight_time INTEGER,
	actual_flight_time    INTEGER,
	air_time              INTEGER,
	departure_delay       SMALLINT,
	arrival_delay         SMALLINT,
	origin_airport        TEXT,
	destination_airport   TEXT,
	distance              INTEGER,
	taxi_out              INTEGER,
	taxi_in               INTEGER,
	carrier_delay         INTEGER,
	weather_delay         INTEGER,
	security_delay        INTEGER,
	nas_delay             INTEGER,
	other_delay           INTEGER
)`

const insertFlight = `
INSERT INTO %s (
	id, year, month, day, day_of_week,
	scheduled_departure, actual_departure, scheduled_arrival, actual_arrival,
	airline_code, flight_number, aircraft_registration,
	scheduled_flight_time, actual_flight_time, air_time,
	departure_delay, arrival_delay, origin_airport, destination_airport,
	distance, taxi_out, taxi_in,
	carrier_delay, weather_delay, security_delay, nas_delay, other_delay
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27
) ON CONFLICT (id) DO NOTHING`

// DefaultFlightTable is the table PostgresStore writes to when none is set.
const DefaultFlightTable = "flight_data"

// PostgresStore inserts flights with one pipelined pgx.Batch per request.
// Rows that hit an existing id are skipped by the server and reported as
// rejected.
type PostgresStore struct {
	pool   *pgxpool.Pool
	conn   PgxConn
	table  string
	insert string
	logger *zap.Logger
}

// ConnectPostgres opens a pool for uri. maxConns <= 0 keeps the pgx default.
func ConnectPostgres(ctx context.Context, uri, table string, maxConns int32, logger *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres uri: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	logger.Info("connected to postgres",
		zap.String("table", table),
		zap.Int32("max_conns", cfg.MaxConns))

	s := NewPostgresStore(pool, table, logger)
	s.pool = pool
	return s, nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(conn PgxConn, table string, logger *zap.Logger) *PostgresStore {
	if table == "" {
		table = DefaultFlightTable
	}
	ident := pgx.Identifier{table}.Sanitize()
	return &PostgresStore{
		conn:   conn,
		table:  table,
		insert: fmt.Sprintf(insertFlight, ident),
		logger: logger,
	}
}

func (s *PostgresStore) Name() string { return "postgres://" + s.table }

func (s *PostgresStore) MaxBatchSize() int { return 0 }

// EnsureSchema creates the flight table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ident := pgx.Identifier{s.table}.Sanitize()
	if _, err := s.conn.Exec(ctx, fmt.Sprintf(createFlightTable, ident)); err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

// InsertMany queues one INSERT per record and sends them in a single round
// trip. The batch runs in one implicit transaction, so a statement error
// fails the whole request.
func (s *PostgresStore) InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error) {
	if len(records) == 0 {
		return InsertResult{}, nil
	}

	batch := &pgx.Batch{}
	for i := range records {
		batch.Queue(s.insert, flightArgs(&records[i])...)
	}

	br := s.conn.SendBatch(ctx, batch)

	var res InsertResult
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return InsertResult{}, fmt.Errorf("inserting record %d of %d: %w", i+1, batch.Len(), err)
		}
		if tag.RowsAffected() == 0 {
			res.Rejected++
		} else {
			res.Inserted++
		}
	}
	if err := br.Close(); err != nil {
		return InsertResult{}, fmt.Errorf("closing batch: %w", err)
	}
	return res, nil
}

func (s *PostgresStore) Close(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func flightArgs(f *record.Flight) []any {
	return []any{
		f.ID().String(),
		int32(f.Year), int16(f.Month), int16(f.Day), int16(f.DayOfWeek),
		int32(f.ScheduledDeparture), int32(f.ActualDeparture),
		int32(f.ScheduledArrival), int32(f.ActualArrival),
		f.AirlineCode, int32(f.FlightNumber), f.AircraftRegistration,
		int32(f.ScheduledFlightTime), int32(f.ActualFlightTime), int32(f.AirTime),
		f.DepartureDelay, f.ArrivalDelay,
		f.OriginAirport, f.DestinationAirport,
		int32(f.Distance), int32(f.TaxiOut), int32(f.TaxiIn),
		int32(f.CarrierDelay), int32(f.WeatherDelay), int32(f.SecurityDelay),
		int32(f.NASDelay), int32(f.OtherDelay),
	}
}
