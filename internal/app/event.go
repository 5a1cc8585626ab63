package app

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
)

// ObjectCreated is the detail of an EventBridge "Object Created" event.
type ObjectCreated struct {
	Version string `json:"version"`
	Bucket  struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		Key  string `json:"key"`
		Size int64  `json:"size"`
		ETag string `json:"etag"`
	} `json:"object"`
	RequestID string `json:"request-id"`
	Reason    string `json:"reason"`
}

// ParseObjectCreated extracts the S3 object an EventBridge event refers to.
func ParseObjectCreated(event events.CloudWatchEvent) (ObjectCreated, error) {
	var detail ObjectCreated
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return ObjectCreated{}, appErrors.NewConfig("decoding event detail", err)
	}
	if detail.Bucket.Name == "" || detail.Object.Key == "" {
		return ObjectCreated{}, appErrors.NewConfig(fmt.Sprintf("event %s does not name an S3 object", event.ID), nil)
	}
	return detail, nil
}
