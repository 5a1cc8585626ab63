package transform

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/acme-corp/flight-ingest/internal/metrics"
	"github.com/acme-corp/flight-ingest/internal/record"
)

func flightLine(n int, origin string) string {
	return fmt.Sprintf("2009,1,15,4,1200,1205,1400,1410,AA,%d,N123AA,120,125,100,5,10,%s,LAX,2475,15,10,0,0,0,0,0", n, origin)
}

func makeLines(texts ...string) []record.RawLine {
	lines := make([]record.RawLine, len(texts))
	for i, text := range texts {
		lines[i] = record.RawLine{Number: int64(i + 2), Text: text}
	}
	return lines
}

func TestChunkProcessor_PartitionsEveryLine(t *testing.T) {
	var texts []string
	for i := 0; i < 1000; i++ {
		switch {
		case i%10 == 0:
			texts = append(texts, strings.Replace(flightLine(i, "JFK"), "2009", "abc", 1))
		case i%25 == 1:
			texts = append(texts, "too,short")
		default:
			texts = append(texts, flightLine(i, "JFK"))
		}
	}
	collector := metrics.NewCollector()
	p := NewChunkProcessor(8, ",", false, collector, zap.NewNop())

	result := p.Process(makeLines(texts...))

	assert.Equal(t, 1000, result.Lines())
	assert.Len(t, result.Rejected, 140)
	assert.Len(t, result.Records, 860)

	r := collector.Snapshot()
	assert.Equal(t, int64(860), r.RecordsParsed)
	assert.Equal(t, int64(140), r.ParseRejected)
	assert.Zero(t, r.RecordsWritten)
}

func TestChunkProcessor_RejectionCarriesLine(t *testing.T) {
	bad := strings.Replace(flightLine(1, "JFK"), "2009", "abc", 1)
	p := NewChunkProcessor(2, ",", false, nil, zap.NewNop())

	result := p.Process(makeLines(bad))

	require.Len(t, result.Rejected, 1)
	assert.Equal(t, bad, result.Rejected[0].Line.Text)
	assert.Equal(t, int64(2), result.Rejected[0].Line.Number)
	assert.Equal(t, `invalid year value "abc"`, result.Rejected[0].Reason)
}

func TestChunkProcessor_Empty(t *testing.T) {
	p := NewChunkProcessor(4, ",", true, nil, zap.NewNop())

	result := p.Process(nil)

	assert.Zero(t, result.Lines())
}

func TestChunkProcessor_MoreWorkersThanLines(t *testing.T) {
	p := NewChunkProcessor(64, ",", false, nil, zap.NewNop())

	result := p.Process(makeLines(flightLine(1, "JFK"), flightLine(2, "JFK")))

	assert.Len(t, result.Records, 2)
}

func TestChunkProcessor_AlternateDelimiter(t *testing.T) {
	p := NewChunkProcessor(1, ";", false, nil, zap.NewNop())

	result := p.Process(makeLines(strings.ReplaceAll(flightLine(1, "JFK"), ",", ";")))

	require.Len(t, result.Records, 1)
	assert.Equal(t, "JFK", result.Records[0].OriginAirport)
}

func TestChunkProcessor_Departures(t *testing.T) {
	p := NewChunkProcessor(3, ",", true, nil, zap.NewNop())

	result := p.Process(makeLines(
		flightLine(1, "PHX"),
		flightLine(2, "PHX"),
		flightLine(3, "ATL"),
		flightLine(4, ""),
		"broken",
	))

	assert.Equal(t, Departures{"PHX": 2, "ATL": 1}, result.Departures)
	assert.Equal(t, int64(3), result.Departures.Total())
}

func TestChunkProcessor_ParserPanicRejectsLine(t *testing.T) {
	p := NewChunkProcessor(2, ",", false, nil, zap.NewNop())
	p.parseLine = func(line record.RawLine, delim string) record.Outcome {
		if strings.HasPrefix(line.Text, "boom") {
			panic("unexpected input")
		}
		return record.ParseLine(line, delim)
	}

	result := p.Process(makeLines(flightLine(1, "JFK"), "boom"))

	assert.Len(t, result.Records, 1)
	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Reason, "unexpected input")
}

func TestDepartures_MergeIsAssociative(t *testing.T) {
	a := Departures{"PHX": 1, "ATL": 2}
	b := Departures{"PHX": 4}
	c := Departures{"DEN": 3}

	left := Departures{}
	left.Merge(a)
	left.Merge(b)
	left.Merge(c)

	bc := Departures{}
	bc.Merge(b)
	bc.Merge(c)
	right := Departures{}
	right.Merge(bc)
	right.Merge(a)

	assert.Equal(t, left, right)

	var none Departures
	none.Merge(a)
	assert.Nil(t, none)
}
