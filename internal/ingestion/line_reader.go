package ingestion

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/acme-corp/flight-ingest/internal/record"

	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
)

const readBufferSize = 256 * 1024

// LineReader yields the lines of a stream one at a time, numbered from 1.
// Lines may be arbitrarily long; a trailing "\r" is dropped.
type LineReader struct {
	r *bufio.Reader
	n int64
}

func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Next returns the next line, or io.EOF once the stream is exhausted.
func (lr *LineReader) Next() (record.RawLine, error) {
	text, err := lr.r.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return record.RawLine{}, appErrors.NewSourceUnavailable("reading line", err)
		}
		if text == "" {
			return record.RawLine{}, io.EOF
		}
	}

	text = strings.TrimSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\r")
	lr.n++
	return record.RawLine{Number: lr.n, Text: text}, nil
}

// ReadHeader consumes the first line. A stream without one is an empty source.
func (lr *LineReader) ReadHeader() (string, error) {
	line, err := lr.Next()
	if errors.Is(err, io.EOF) {
		return "", appErrors.NewEmptySource("source has no header line")
	}
	if err != nil {
		return "", err
	}
	return line.Text, nil
}

// LinesRead is the number of lines returned so far, header included.
func (lr *LineReader) LinesRead() int64 { return lr.n }
