package ingestion

import (
	"context"
	"io"
	"os"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
)

// FileSource streams a CSV file from the local filesystem.
type FileSource struct {
	path string
}

// NewFileSource creates a source for the file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return "file://" + s.path }

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.NewSourceUnavailable("opening "+s.path, err)
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, appErrors.NewSourceUnavailable("opening "+s.path, err)
	}
	return f, nil
}
