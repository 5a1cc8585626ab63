// Package deadletter keeps rows that could not be parsed in an append-only
// CSV file with the columns line,error_reason.
package deadletter

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Header is written once when the file is created.
const Header = "line,error_reason"

// Entry is one rejected row and why it was rejected.
type Entry struct {
	Line   string
	Reason string
}

// Sink appends entries to a dead-letter file. It is safe for concurrent use;
// the lock is held for one append call only.
type Sink struct {
	path   string
	file   *os.File
	w      *bufio.Writer
	logger *zap.Logger
	mu     sync.Mutex
	count  int64
}

// Open opens (or creates) the dead-letter file at path for appending. The
// header is written only if the file did not exist before.
func Open(path string, logger *zap.Logger) (*Sink, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil
	if statErr != nil && !errors.Is(statErr, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat dead-letter file %s: %w", path, statErr)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening dead-letter file %s: %w", path, err)
	}

	s := &Sink{
		path:   path,
		file:   f,
		w:      bufio.NewWriter(f),
		logger: logger,
	}
	if !existed {
		if _, err := s.w.WriteString(Header + "\n"); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing dead-letter header: %w", err)
		}
	}
	return s, nil
}

func (s *Sink) Path() string { return s.path }

// Record appends one entry.
func (s *Sink) Record(e Entry) {
	s.RecordAll([]Entry{e})
}

// RecordAll appends a batch of entries under a single lock acquisition so
// that rows from different chunks never interleave.
func (s *Sink) RecordAll(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	var b strings.Builder
	for _, e := range entries {
		b.WriteString(Escape(e.Line))
		b.WriteByte(',')
		b.WriteString(Escape(e.Reason))
		b.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.WriteString(b.String()); err != nil {
		s.logger.Error("failed to write dead-letter entries",
			zap.String("path", s.path),
			zap.Int("entries", len(entries)),
			zap.Error(err))
		return
	}
	s.count += int64(len(entries))
}

// Count is the number of entries recorded through this sink.
func (s *Sink) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Flush pushes buffered entries to the file and syncs it.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flushing dead-letter file: %w", err)
	}
	return s.file.Sync()
}

// Close flushes and closes the file.
func (s *Sink) Close() error {
	flushErr := s.Flush()
	if err := s.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// Escape quotes value when it contains a delimiter, a quote or a line break,
// doubling any embedded quote.
func Escape(value string) string {
	if !strings.ContainsAny(value, ",\"\r\n") {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

// ReadEntries parses a dead-letter file back into entries, skipping the header.
func ReadEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading dead-letter entries: %w", err)
	}

	var entries []Entry
	for i, row := range rows {
		if i == 0 && row[0] == "line" && row[1] == "error_reason" {
			continue
		}
		entries = append(entries, Entry{Line: row[0], Reason: row[1]})
	}
	return entries, nil
}
