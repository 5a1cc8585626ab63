package metrics

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flight_ingest"

// Collector is the run tally. Chunk tasks update it concurrently through
// atomic counters; the same increments are mirrored to Prometheus.
type Collector struct {
	linesRead        atomic.Int64
	recordsParsed    atomic.Int64
	parseRejected    atomic.Int64
	recordsWritten   atomic.Int64
	writeRejected    atomic.Int64
	chunksDispatched atomic.Int64
	chunksFailed     atomic.Int64

	stageDurations map[string]*durationTracker
	departures     map[string]int64
	mu             sync.RWMutex

	prom promCounters

	startTime time.Time
}

type durationTracker struct {
	total time.Duration
	count int64
	mu    sync.Mutex
}

type promCounters struct {
	lines      prometheus.Counter
	parsed     prometheus.Counter
	parseRej   prometheus.Counter
	written    prometheus.Counter
	writeRej   prometheus.Counter
	chunks     prometheus.Counter
	chunksFail prometheus.Counter
	stages     *prometheus.HistogramVec
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

func NewCollector() *Collector {
	return &Collector{
		stageDurations: make(map[string]*durationTracker),
		departures:     make(map[string]int64),
		startTime:      time.Now(),
		prom: promCounters{
			lines:      newCounter("lines_read_total", "Data lines read from the source, header excluded."),
			parsed:     newCounter("records_parsed_total", "Lines parsed into flight records."),
			parseRej:   newCounter("records_parse_rejected_total", "Lines rejected by the parser."),
			written:    newCounter("records_written_total", "Records committed by the downstream store."),
			writeRej:   newCounter("records_write_rejected_total", "Parsed records the downstream store did not commit."),
			chunks:     newCounter("chunks_dispatched_total", "Chunks handed off for parsing and writing."),
			chunksFail: newCounter("chunks_failed_total", "Chunk tasks that ended with an unexpected failure."),
			stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of the per-chunk parse and write stages.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
			}, []string{"stage"}),
		},
	}
}

// Register exposes the collector's counters on reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.prom.lines, c.prom.parsed, c.prom.parseRej, c.prom.written,
		c.prom.writeRej, c.prom.chunks, c.prom.chunksFail, c.prom.stages,
	} {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}
	return nil
}

func (c *Collector) RecordLineRead() {
	c.linesRead.Add(1)
	c.prom.lines.Inc()
}

func (c *Collector) RecordParsed(n int64) {
	c.recordsParsed.Add(n)
	c.prom.parsed.Add(float64(n))
}

func (c *Collector) RecordParseRejected(n int64) {
	c.parseRejected.Add(n)
	c.prom.parseRej.Add(float64(n))
}

func (c *Collector) RecordWritten(n int64) {
	c.recordsWritten.Add(n)
	c.prom.written.Add(float64(n))
}

func (c *Collector) RecordWriteRejected(n int64) {
	c.writeRejected.Add(n)
	c.prom.writeRej.Add(float64(n))
}

func (c *Collector) ChunkDispatched() {
	c.chunksDispatched.Add(1)
	c.prom.chunks.Inc()
}

func (c *Collector) ChunkFailed() {
	c.chunksFailed.Add(1)
	c.prom.chunksFail.Inc()
}

// Written is the running number of committed records.
func (c *Collector) Written() int64 { return c.recordsWritten.Load() }

// TrackStageDuration records how long a named stage took.
func (c *Collector) TrackStageDuration(stage string, d time.Duration) {
	c.prom.stages.WithLabelValues(stage).Observe(d.Seconds())

	c.mu.RLock()
	tracker, ok := c.stageDurations[stage]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		// Double-check after acquiring write lock
		if tracker, ok = c.stageDurations[stage]; !ok {
			tracker = &durationTracker{}
			c.stageDurations[stage] = tracker
		}
		c.mu.Unlock()
	}

	tracker.mu.Lock()
	tracker.total += d
	tracker.count++
	tracker.mu.Unlock()
}

// MergeDepartures adds one chunk's per-airport departure counts.
func (c *Collector) MergeDepartures(counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for airport, n := range counts {
		c.departures[airport] += n
	}
}

// Report is the final (or a point-in-time) view of a run.
type Report struct {
	LinesRead        int64             `json:"lines_read"`
	RecordsParsed    int64             `json:"records_parsed"`
	ParseRejected    int64             `json:"parse_rejected"`
	RecordsWritten   int64             `json:"records_written"`
	WriteRejected    int64             `json:"write_rejected"`
	ChunksDispatched int64             `json:"chunks_dispatched"`
	ChunksFailed     int64             `json:"chunks_failed"`
	Duration         time.Duration     `json:"-"`
	Elapsed          string            `json:"elapsed"`
	Throughput       float64           `json:"records_per_second"`
	AvgStageDuration map[string]string `json:"avg_stage_duration_ms"`
	Departures       map[string]int64  `json:"departures,omitempty"`
}

// Snapshot returns a consistent view of all metrics.
func (c *Collector) Snapshot() Report {
	written := c.recordsWritten.Load()
	elapsed := time.Since(c.startTime)

	var throughput float64
	if elapsed.Seconds() > 0 {
		throughput = float64(written) / elapsed.Seconds()
	}

	avgDurations := make(map[string]string)
	var departures map[string]int64

	c.mu.RLock()
	for stage, tracker := range c.stageDurations {
		tracker.mu.Lock()
		if tracker.count > 0 {
			avg := tracker.total / time.Duration(tracker.count)
			avgDurations[stage] = fmt.Sprintf("%.2fms", float64(avg.Microseconds())/1000)
		}
		tracker.mu.Unlock()
	}
	if len(c.departures) > 0 {
		departures = make(map[string]int64, len(c.departures))
		for k, v := range c.departures {
			departures[k] = v
		}
	}
	c.mu.RUnlock()

	return Report{
		LinesRead:        c.linesRead.Load(),
		RecordsParsed:    c.recordsParsed.Load(),
		ParseRejected:    c.parseRejected.Load(),
		RecordsWritten:   written,
		WriteRejected:    c.writeRejected.Load(),
		ChunksDispatched: c.chunksDispatched.Load(),
		ChunksFailed:     c.chunksFailed.Load(),
		Duration:         elapsed,
		Elapsed:          elapsed.Round(time.Millisecond).String(),
		Throughput:       throughput,
		AvgStageDuration: avgDurations,
		Departures:       departures,
	}
}

// Unaccounted is the number of data lines that are neither written nor
// rejected. It is zero once a run has completed.
func (r Report) Unaccounted() int64 {
	return r.LinesRead - r.RecordsWritten - r.ParseRejected - r.WriteRejected
}

// AirportCount is one entry of TopDepartures.
type AirportCount struct {
	Airport string `json:"airport"`
	Flights int64  `json:"flights"`
}

// TopDepartures returns the n busiest origin airports, ties broken by code.
func (r Report) TopDepartures(n int) []AirportCount {
	out := make([]AirportCount, 0, len(r.Departures))
	for airport, flights := range r.Departures {
		out = append(out, AirportCount{Airport: airport, Flights: flights})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Flights != out[j].Flights {
			return out[i].Flights > out[j].Flights
		}
		return out[i].Airport < out[j].Airport
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// JSON returns the report as formatted JSON.
func (r Report) JSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
