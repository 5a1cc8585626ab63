// Package pipeline drives one ingestion run: it streams the source, cuts it
// into chunks and hands each chunk to a bounded set of concurrent tasks that
// parse, dead-letter and write it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acme-corp/flight-ingest/internal/deadletter"
	appErrors "github.com/acme-corp/flight-ingest/internal/errors"
	"github.com/acme-corp/flight-ingest/internal/ingestion"
	"github.com/acme-corp/flight-ingest/internal/metrics"
	"github.com/acme-corp/flight-ingest/internal/record"
	"github.com/acme-corp/flight-ingest/internal/storage"
	"github.com/acme-corp/flight-ingest/internal/transform"
)

const (
	DefaultChunkSize   = 10_000
	DefaultMaxInFlight = 4
)

// State is the lifecycle position of a run.
type State int32

const (
	StateStarting State = iota
	StateStreaming
	StateDraining
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Processor parses one chunk of lines.
type Processor interface {
	Process(lines []record.RawLine) transform.ChunkResult
}

// Writer commits parsed records and credits the run collector.
type Writer interface {
	Write(ctx context.Context, records []record.Flight) (storage.WriteReport, error)
}

// ErrorSink receives rows the parser rejected.
type ErrorSink interface {
	RecordAll(entries []deadletter.Entry)
	Flush() error
}

type Options struct {
	// ChunkSize is the number of data lines per unit of work.
	ChunkSize int
	// MaxInFlight bounds how many chunk tasks run at once. Dispatch blocks
	// while the limit is reached.
	MaxInFlight int
	// Sink is optional.
	Sink ErrorSink
	// Timeout is an overall deadline for the run; zero means none.
	Timeout time.Duration
}

// Coordinator runs a single ingestion. It is not reusable.
type Coordinator struct {
	source    ingestion.Source
	processor Processor
	writer    Writer
	collector *metrics.Collector
	logger    *zap.Logger
	opts      Options

	runID string
	state atomic.Int32
}

func New(source ingestion.Source, processor Processor, writer Writer, collector *metrics.Collector, logger *zap.Logger, opts Options) *Coordinator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	runID := uuid.NewString()
	return &Coordinator{
		source:    source,
		processor: processor,
		writer:    writer,
		collector: collector,
		logger:    logger.With(zap.String("run_id", runID)),
		opts:      opts,
		runID:     runID,
	}
}

func (c *Coordinator) RunID() string { return c.runID }

// State returns the current lifecycle state. Safe to call from any goroutine.
func (c *Coordinator) State() State { return State(c.state.Load()) }

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.logger.Debug("run state changed", zap.Stringer("state", s))
}

// Run streams the source to completion and returns the final report.
//
// Only failures to open or read the source (including an empty source and
// an expired deadline) are returned as errors. Parse rejections and write
// failures are counted in the report. When Run fails mid-stream, chunks
// already dispatched are allowed to finish and the partial report is
// returned along with the error.
func (c *Coordinator) Run(ctx context.Context) (metrics.Report, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	c.setState(StateStarting)
	c.logger.Info("starting ingestion",
		zap.String("source", c.source.Name()),
		zap.Int("chunk_size", c.opts.ChunkSize),
		zap.Int("max_in_flight", c.opts.MaxInFlight))

	body, err := c.source.Open(ctx)
	if err != nil {
		return c.fail(c.sourceError(err))
	}
	defer body.Close()

	lines := ingestion.NewLineReader(body)
	if _, err := lines.ReadHeader(); err != nil {
		return c.fail(c.sourceError(err))
	}

	c.setState(StateStreaming)

	var tasks errgroup.Group
	tasks.SetLimit(c.opts.MaxInFlight)

	var seq int
	dispatch := func(chunk []record.RawLine) {
		seq++
		n := seq
		c.collector.ChunkDispatched()
		c.logger.Debug("dispatching chunk", zap.Int("chunk", n), zap.Int("lines", len(chunk)))
		tasks.Go(func() error {
			c.handleChunk(ctx, n, chunk)
			return nil
		})
	}

	streamErr := c.stream(ctx, lines, dispatch)
	if streamErr == nil {
		c.setState(StateDraining)
	}

	_ = tasks.Wait()
	c.flushSink()

	report := c.collector.Snapshot()
	if streamErr != nil {
		c.setState(StateFailed)
		c.logger.Error("ingestion failed",
			zap.Int64("lines_read", report.LinesRead),
			zap.Int64("records_written", report.RecordsWritten),
			zap.Error(streamErr))
		return report, streamErr
	}

	c.setState(StateCompleted)
	c.logger.Info("ingestion completed",
		zap.Int64("lines_read", report.LinesRead),
		zap.Int64("records_written", report.RecordsWritten),
		zap.Int64("parse_rejected", report.ParseRejected),
		zap.Int64("write_rejected", report.WriteRejected),
		zap.Int64("chunks", report.ChunksDispatched),
		zap.String("elapsed", report.Elapsed))
	return report, nil
}

// stream reads lines into fixed-size buffers and dispatches each full buffer,
// then the final partial one. It returns the first read or context error; in
// that case the pending partial buffer is dropped.
func (c *Coordinator) stream(ctx context.Context, lines *ingestion.LineReader, dispatch func([]record.RawLine)) error {
	buf := make([]record.RawLine, 0, c.opts.ChunkSize)
	for {
		line, err := lines.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.sourceError(err)
		}
		c.collector.RecordLineRead()

		buf = append(buf, line)
		if len(buf) < c.opts.ChunkSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}
		dispatch(buf)
		buf = make([]record.RawLine, 0, c.opts.ChunkSize)
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}
	if len(buf) > 0 {
		dispatch(buf)
	}
	return nil
}

// handleChunk parses, dead-letters and writes one chunk. It never panics and
// never returns an error; whatever it could not account for is counted as a
// write rejection so the run totals still add up.
func (c *Coordinator) handleChunk(ctx context.Context, seq int, lines []record.RawLine) {
	var (
		parsed     bool
		written    bool
		pendingRec int
	)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		c.collector.ChunkFailed()
		switch {
		case !parsed:
			c.collector.RecordParseRejected(int64(len(lines)))
		case !written:
			c.collector.RecordWriteRejected(int64(pendingRec))
		}
		c.logger.Error("chunk task panicked",
			zap.Int("chunk", seq),
			zap.Int("lines", len(lines)),
			zap.Any("panic", r))
	}()

	result := c.processor.Process(lines)
	parsed = true
	pendingRec = len(result.Records)

	c.collector.MergeDepartures(result.Departures)

	if c.opts.Sink != nil && len(result.Rejected) > 0 {
		entries := make([]deadletter.Entry, len(result.Rejected))
		for i, rej := range result.Rejected {
			entries[i] = deadletter.Entry{Line: rej.Line.Text, Reason: rej.Reason}
		}
		c.opts.Sink.RecordAll(entries)
	}

	if len(result.Records) == 0 {
		written = true
		return
	}

	report, err := c.writer.Write(ctx, result.Records)
	written = true
	if err != nil {
		c.logger.Warn("chunk write had failures",
			zap.Int("chunk", seq),
			zap.Int("written", report.Written),
			zap.Int("failed", report.Failed),
			zap.Error(err))
		return
	}
	c.logger.Debug("chunk done",
		zap.Int("chunk", seq),
		zap.Int("parsed", len(result.Records)),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("written", report.Written))
}

func (c *Coordinator) flushSink() {
	if c.opts.Sink == nil {
		return
	}
	if err := c.opts.Sink.Flush(); err != nil {
		c.logger.Error("failed to flush dead-letter file", zap.Error(err))
	}
}

// sourceError tags err with the source name. Untyped errors from a Source
// are reported as the source being unavailable.
func (c *Coordinator) sourceError(err error) error {
	if appErrors.TypeOf(err) == "" {
		return appErrors.NewSourceUnavailable(c.source.Name(), err)
	}
	return appErrors.Wrap(err, c.source.Name())
}

func (c *Coordinator) fail(err error) (metrics.Report, error) {
	c.setState(StateFailed)
	c.logger.Error("ingestion failed to start", zap.String("source", c.source.Name()), zap.Error(err))
	return c.collector.Snapshot(), err
}
