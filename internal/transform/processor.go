// Package transform turns chunks of raw lines into flight records.
package transform

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/metrics"
	"github.com/acme-corp/flight-ingest/internal/record"
)

// Rejection is a line the parser refused, with the reason.
type Rejection struct {
	Line   record.RawLine
	Reason string
}

// ChunkResult partitions one chunk: every input line ends up in exactly one
// of Records or Rejected.
type ChunkResult struct {
	Records    []record.Flight
	Rejected   []Rejection
	Departures Departures
}

// Lines is the number of input lines the result accounts for.
func (r ChunkResult) Lines() int { return len(r.Records) + len(r.Rejected) }

// ChunkProcessor parses chunks on a fixed pool of workers.
type ChunkProcessor struct {
	workers   int
	delimiter string
	aggregate bool
	collector *metrics.Collector
	logger    *zap.Logger

	parseLine func(record.RawLine, string) record.Outcome
}

// NewChunkProcessor creates a processor. workers <= 0 means one per CPU.
// When aggregate is set, per-origin departure counts are folded alongside
// parsing.
func NewChunkProcessor(workers int, delimiter string, aggregate bool, collector *metrics.Collector, logger *zap.Logger) *ChunkProcessor {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if delimiter == "" {
		delimiter = ","
	}
	return &ChunkProcessor{
		workers:   workers,
		delimiter: delimiter,
		aggregate: aggregate,
		collector: collector,
		logger:    logger,
		parseLine: record.ParseLine,
	}
}

// Process parses every line of the chunk using a fan-out/fan-in pattern:
//
//	            ┌──► worker 1 (fold) ──┐
//	lines ──►───┼──► worker 2 (fold) ──┼───► merge
//	            └──► worker 3 (fold) ──┘
//
// Each worker folds its lines into a private partial result, so nothing is
// shared while parsing. Output order is not preserved. The collector is
// credited with parsed and rejected counts here, before any write happens.
func (p *ChunkProcessor) Process(lines []record.RawLine) ChunkResult {
	if len(lines) == 0 {
		return ChunkResult{}
	}
	start := time.Now()

	workers := p.workers
	if workers > len(lines) {
		workers = len(lines)
	}

	input := make(chan record.RawLine, len(lines))
	output := make(chan ChunkResult, workers)

	// Fan-out: launch workers
	for w := 0; w < workers; w++ {
		go func() {
			var partial ChunkResult
			if p.aggregate {
				partial.Departures = make(Departures)
			}
			for line := range input {
				p.fold(&partial, line)
			}
			output <- partial
		}()
	}

	for _, line := range lines {
		input <- line
	}
	close(input)

	// Fan-in: merge partials
	result := ChunkResult{
		Records:  make([]record.Flight, 0, len(lines)),
		Rejected: make([]Rejection, 0),
	}
	if p.aggregate {
		result.Departures = make(Departures)
	}
	for w := 0; w < workers; w++ {
		partial := <-output
		result.Records = append(result.Records, partial.Records...)
		result.Rejected = append(result.Rejected, partial.Rejected...)
		result.Departures.Merge(partial.Departures)
	}

	if p.collector != nil {
		p.collector.RecordParsed(int64(len(result.Records)))
		p.collector.RecordParseRejected(int64(len(result.Rejected)))
		p.collector.TrackStageDuration("parse", time.Since(start))
	}

	p.logger.Debug("processed chunk",
		zap.Int("lines", len(lines)),
		zap.Int("parsed", len(result.Records)),
		zap.Int("rejected", len(result.Rejected)))

	return result
}

func (p *ChunkProcessor) fold(partial *ChunkResult, line record.RawLine) {
	out := p.parse(line)
	if !out.Parsed() {
		partial.Rejected = append(partial.Rejected, Rejection{Line: line, Reason: out.Reason()})
		return
	}
	partial.Records = append(partial.Records, out.Record)
	if partial.Departures != nil {
		partial.Departures.Add(out.Record.OriginAirport)
	}
}

// parse never panics; a parser panic rejects only the offending line.
func (p *ChunkProcessor) parse(line record.RawLine) (out record.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("parser panic", zap.Int64("line", line.Number), zap.Any("panic", r))
			out = record.Outcome{
				Line: line,
				Err:  &record.ParseError{Field: "line", Reason: record.ReasonInvalid, Value: fmt.Sprint(r)},
			}
		}
	}()
	return p.parseLine(line, p.delimiter)
}
