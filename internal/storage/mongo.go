package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/record"
)

// MongoCollection is the part of *mongo.Collection used by MongoStore.
type MongoCollection interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

var _ MongoCollection = (*mongo.Collection)(nil)

// flightDocument stores a flight under its natural key so a re-run reports
// duplicates instead of inserting them twice.
type flightDocument struct {
	ID            string `bson:"_id"`
	record.Flight `bson:",inline"`
}

// MongoStore inserts flights into one collection with unordered InsertMany.
type MongoStore struct {
	client     *mongo.Client
	collection MongoCollection
	name       string
	logger     *zap.Logger
}

// ConnectMongo dials uri and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	logger.Info("connected to mongodb",
		zap.String("database", database),
		zap.String("collection", collection))

	s := NewMongoStore(client.Database(database).Collection(collection), database+"."+collection, logger)
	s.client = client
	return s, nil
}

// NewMongoStore wraps an existing collection handle.
func NewMongoStore(coll MongoCollection, name string, logger *zap.Logger) *MongoStore {
	return &MongoStore{collection: coll, name: name, logger: logger}
}

func (s *MongoStore) Name() string { return "mongodb://" + s.name }

func (s *MongoStore) MaxBatchSize() int { return 0 }

// InsertMany sends one unordered bulk insert. Per-document write errors are
// counted as rejections; anything else, including a write concern error,
// fails the request.
func (s *MongoStore) InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error) {
	docs := make([]interface{}, len(records))
	for i := range records {
		docs[i] = flightDocument{ID: records[i].Key(), Flight: records[i]}
	}

	_, err := s.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		return InsertResult{Inserted: len(records)}, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return InsertResult{}, err
	}

	rejected := min(len(bwe.WriteErrors), len(records))
	s.logger.Warn("bulk insert partially failed",
		zap.String("collection", s.name),
		zap.Int("rejected", rejected),
		zap.String("first_error", bwe.WriteErrors[0].Message))
	return InsertResult{Inserted: len(records) - rejected, Rejected: rejected}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
