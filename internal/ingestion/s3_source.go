package ingestion

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
)

// S3API is the subset of the S3 client used to stream an object.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Source streams one object from S3. The body is consumed as it arrives,
// the object is never buffered whole.
type S3Source struct {
	client S3API
	bucket string
	key    string
	logger *zap.Logger
}

// NewS3Source creates a source for s3://bucket/key.
func NewS3Source(client S3API, bucket, key string, logger *zap.Logger) *S3Source {
	return &S3Source{
		client: client,
		bucket: bucket,
		key:    key,
		logger: logger,
	}
}

func (s *S3Source) Name() string { return fmt.Sprintf("s3://%s/%s", s.bucket, s.key) }

func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, appErrors.NewSourceUnavailable("head "+s.Name(), err)
	}

	size := aws.ToInt64(head.ContentLength)
	s.logger.Info("opening source object",
		zap.String("source", s.Name()),
		zap.Int64("size_bytes", size),
		zap.Float64("size_mb", float64(size)/1_048_576))

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, appErrors.NewSourceUnavailable("get "+s.Name(), err)
	}
	return out.Body, nil
}
