package main

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/acme-corp/flight-ingest/internal/config"
	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
)

func objectCreated(t *testing.T, bucket, key string) events.CloudWatchEvent {
	t.Helper()
	detail, err := json.Marshal(map[string]any{
		"bucket": map[string]any{"name": bucket},
		"object": map[string]any{"key": key, "size": 10},
	})
	require.NoError(t, err)
	return events.CloudWatchEvent{ID: "evt-1", DetailType: "Object Created", Detail: detail}
}

func TestHandle_ValidatesSourcePerEvent(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := &handler{
		cfg: &config.Config{
			Source:   config.SourceConfig{Compression: "zip"},
			Pipeline: config.PipelineConfig{ChunkSize: 10, MaxInFlight: 1, Delimiter: ","},
			Store:    config.StoreConfig{Type: "memory", BatchSize: 10},
			Log:      config.LogConfig{Level: "info", Format: "json"},
		},
		logger: zap.New(core),
	}

	_, err := h.handle(context.Background(), objectCreated(t, "raw-flights", "2009.csv"))

	require.Error(t, err)
	assert.True(t, appErrors.IsConfig(err))
	assert.Equal(t, 1, logs.FilterMessage("invalid config for event").Len())
	assert.Empty(t, h.cfg.Source.Bucket, "shared config is not mutated")
}

func TestHandle_RejectsEventWithoutObject(t *testing.T) {
	h := &handler{cfg: &config.Config{}, logger: zap.NewNop()}

	_, err := h.handle(context.Background(), objectCreated(t, "", ""))

	require.Error(t, err)
	assert.True(t, appErrors.IsConfig(err))
}
