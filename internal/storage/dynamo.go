package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/record"
)

// DynamoBatchLimit is the most items BatchWriteItem accepts per request.
const DynamoBatchLimit = 25

// DynamoAPI is the part of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// DynamoConfig tunes how unprocessed items are retried.
type DynamoConfig struct {
	Table         string
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor int
}

// DefaultDynamoConfig returns the retry settings used for table.
func DefaultDynamoConfig(table string) DynamoConfig {
	return DynamoConfig{
		Table:         table,
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
	}
}

// DynamoStore puts flights into a table keyed by the string attribute "id".
type DynamoStore struct {
	client DynamoAPI
	config DynamoConfig
	logger *zap.Logger
}

func NewDynamoStore(client DynamoAPI, config DynamoConfig, logger *zap.Logger) *DynamoStore {
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	return &DynamoStore{client: client, config: config, logger: logger}
}

func (s *DynamoStore) Name() string { return "dynamodb://" + s.config.Table }

func (s *DynamoStore) MaxBatchSize() int { return DynamoBatchLimit }

// InsertMany writes records in requests of at most DynamoBatchLimit items.
// Items DynamoDB leaves unprocessed are resent with exponential backoff;
// whatever is still unprocessed after the last retry is rejected. An error is
// returned only when the first request fails before any item was accepted.
//
// BatchWriteItem refuses a whole request that names the same key twice, so
// records repeating an id already seen in this call are rejected up front.
func (s *DynamoStore) InsertMany(ctx context.Context, records []record.Flight) (InsertResult, error) {
	var res InsertResult
	requests := make([]types.WriteRequest, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i := range records {
		id := records[i].ID().String()
		if _, dup := seen[id]; dup {
			res.Rejected++
			continue
		}
		seen[id] = struct{}{}

		item, err := attributevalue.MarshalMap(records[i])
		if err != nil {
			return InsertResult{}, fmt.Errorf("marshaling record %s: %w", records[i].Key(), err)
		}
		item["id"] = &types.AttributeValueMemberS{Value: id}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	if res.Rejected > 0 {
		s.logger.Warn("duplicate keys in batch rejected",
			zap.String("table", s.config.Table),
			zap.Int("duplicates", res.Rejected))
	}

	for lo := 0; lo < len(requests); lo += DynamoBatchLimit {
		hi := min(lo+DynamoBatchLimit, len(requests))
		written, err := s.writeChunk(ctx, requests[lo:hi])
		if err != nil && lo == 0 && written == 0 {
			return InsertResult{}, err
		}
		res.Inserted += written
		res.Rejected += (hi - lo) - written
	}
	return res, nil
}

// writeChunk sends one BatchWriteItem and retries its unprocessed items. It
// returns how many items were accepted; err is set when a request failed.
func (s *DynamoStore) writeChunk(ctx context.Context, requests []types.WriteRequest) (int, error) {
	pending := requests
	delay := s.config.InitialDelay

	for attempt := 0; attempt <= s.config.MaxRetries && len(pending) > 0; attempt++ {
		if attempt > 0 {
			s.logger.Debug("retrying unprocessed items",
				zap.String("table", s.config.Table),
				zap.Int("attempt", attempt),
				zap.Int("unprocessed", len(pending)),
				zap.Duration("delay", delay))

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return len(requests) - len(pending), ctx.Err()
			}
			delay *= time.Duration(s.config.BackoffFactor)
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.config.Table: pending},
		})
		if err != nil {
			s.logger.Error("batch write failed",
				zap.String("table", s.config.Table),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return len(requests) - len(pending), err
		}
		pending = out.UnprocessedItems[s.config.Table]
	}

	if len(pending) > 0 {
		s.logger.Warn("items left unprocessed after all retries",
			zap.String("table", s.config.Table),
			zap.Int("unprocessed", len(pending)))
	}
	return len(requests) - len(pending), nil
}

func (s *DynamoStore) Close(ctx context.Context) error { return nil }
