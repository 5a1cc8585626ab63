package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
)

// Compression selects how a source stream is decoded.
type Compression string

const (
	CompressionAuto Compression = "auto"
	CompressionGzip Compression = "gzip"
	CompressionNone Compression = "none"
)

var gzipMagic = []byte{0x1f, 0x8b}

// Decompressed wraps a Source so that gzip objects are inflated on the fly.
// In auto mode the first two bytes decide.
func Decompressed(inner Source, mode Compression) Source {
	if mode == CompressionNone || mode == "" {
		return inner
	}
	return &gzipSource{inner: inner, mode: mode}
}

type gzipSource struct {
	inner Source
	mode  Compression
}

func (s *gzipSource) Name() string { return s.inner.Name() }

func (s *gzipSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := s.inner.Open(ctx)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(rc)
	if s.mode == CompressionAuto {
		magic, err := br.Peek(len(gzipMagic))
		if err != nil || magic[0] != gzipMagic[0] || magic[1] != gzipMagic[1] {
			// too short or plain text, hand the bytes through untouched
			return &readCloser{Reader: br, closers: []io.Closer{rc}}, nil
		}
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		rc.Close()
		return nil, appErrors.NewSourceUnavailable(fmt.Sprintf("gzip header of %s", s.inner.Name()), err)
	}
	return &readCloser{Reader: gz, closers: []io.Closer{gz, rc}}, nil
}

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
