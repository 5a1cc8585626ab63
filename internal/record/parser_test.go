package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLine = "2009,1,15,4,1200,1205,1400,1410,AA,100,N123AA,120,125,100,5,10,JFK,LAX,2475,15,10,1,2,3,4,5"

func fieldsWith(idx int, value string) []string {
	fields := strings.Split(validLine, ",")
	fields[idx] = value
	return fields
}

func TestParse_ValidRow(t *testing.T) {
	f, perr := Parse(strings.Split(validLine, ","))

	require.Nil(t, perr)
	assert.Equal(t, uint16(2009), f.Year)
	assert.Equal(t, uint8(1), f.Month)
	assert.Equal(t, uint8(15), f.Day)
	assert.Equal(t, uint8(4), f.DayOfWeek)
	assert.Equal(t, "AA", f.AirlineCode)
	assert.Equal(t, uint16(100), f.FlightNumber)
	assert.Equal(t, int16(5), f.DepartureDelay)
	assert.Equal(t, "JFK", f.OriginAirport)
	assert.Equal(t, "LAX", f.DestinationAirport)
	assert.Equal(t, uint16(2475), f.Distance)
	assert.Equal(t, uint16(5), f.OtherDelay)
}

func TestSchema_StrictnessTable(t *testing.T) {
	assert.Len(t, Schema, 26)
	assert.Equal(t, []string{"year", "month", "day", "day_of_week"}, StrictFields())
	assert.Equal(t, 17, ColumnIndex("destination_airport"))
	assert.Equal(t, -1, ColumnIndex("tail"))
}

func TestParse_StrictFieldsReject(t *testing.T) {
	testCases := []struct {
		desc   string
		field  string
		value  string
		reason string
	}{
		{desc: "year not a number", field: "year", value: "abc", reason: `invalid year value "abc"`},
		{desc: "year empty", field: "year", value: "", reason: `invalid year value ""`},
		{desc: "month out of range", field: "month", value: "13", reason: `invalid month value "13"`},
		{desc: "day zero", field: "day", value: "0", reason: `invalid day value "0"`},
		{desc: "day of week overflow", field: "day_of_week", value: "300", reason: `invalid day_of_week value "300"`},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			_, perr := Parse(fieldsWith(ColumnIndex(tC.field), tC.value))

			require.NotNil(t, perr)
			assert.Equal(t, tC.field, perr.Field)
			assert.Equal(t, ReasonInvalid, perr.Reason)
			assert.Equal(t, tC.reason, perr.Error())
		})
	}
}

func TestParse_LenientFieldsDefault(t *testing.T) {
	testCases := []struct {
		desc  string
		field string
		value string
		check func(t *testing.T, f Flight)
	}{
		{desc: "taxi in garbage", field: "taxi_in", value: "NA", check: func(t *testing.T, f Flight) { assert.Zero(t, f.TaxiIn) }},
		{desc: "departure delay empty", field: "departure_delay", value: "", check: func(t *testing.T, f Flight) { assert.Zero(t, f.DepartureDelay) }},
		{desc: "arrival delay negative", field: "arrival_delay", value: "-12", check: func(t *testing.T, f Flight) { assert.Equal(t, int16(-12), f.ArrivalDelay) }},
		{desc: "distance overflow", field: "distance", value: "70000", check: func(t *testing.T, f Flight) { assert.Zero(t, f.Distance) }},
		{desc: "flight number decimal", field: "flight_number", value: "1.5", check: func(t *testing.T, f Flight) { assert.Zero(t, f.FlightNumber) }},
		{desc: "padded value trimmed", field: "air_time", value: " 42 ", check: func(t *testing.T, f Flight) { assert.Equal(t, uint16(42), f.AirTime) }},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			f, perr := Parse(fieldsWith(ColumnIndex(tC.field), tC.value))

			require.Nil(t, perr)
			tC.check(t, f)
		})
	}
}

func TestParse_MissingField(t *testing.T) {
	fields := strings.Split(validLine, ",")

	_, perr := Parse(fields[:20])

	require.NotNil(t, perr)
	assert.Equal(t, ReasonMissing, perr.Reason)
	assert.Equal(t, "missing taxi_in field", perr.Error())
}

func TestParse_ExtraColumnsIgnored(t *testing.T) {
	_, perr := Parse(strings.Split(validLine+",extra,columns", ","))
	assert.Nil(t, perr)
}

func TestParseLine_Idempotent(t *testing.T) {
	lines := []RawLine{
		{Number: 2, Text: validLine},
		{Number: 3, Text: strings.Replace(validLine, "2009", "abc", 1)},
		{Number: 4, Text: "short,row"},
	}
	for _, line := range lines {
		first := ParseLine(line, ",")
		second := ParseLine(line, ",")
		assert.Equal(t, first, second)
	}
}

func TestParseLine_RejectionKeepsLine(t *testing.T) {
	line := RawLine{Number: 7, Text: strings.Replace(validLine, "2009", "abc", 1)}

	out := ParseLine(line, ",")

	assert.False(t, out.Parsed())
	assert.Equal(t, line, out.Line)
	assert.Equal(t, `invalid year value "abc"`, out.Reason())
}

func TestFlight_IDStable(t *testing.T) {
	a, _ := Parse(strings.Split(validLine, ","))
	b, _ := Parse(strings.Split(validLine, ","))
	c, _ := Parse(fieldsWith(ColumnIndex("flight_number"), "101"))

	assert.Equal(t, a.ID(), b.ID())
	assert.NotEqual(t, a.ID(), c.ID())
	assert.Equal(t, "2009-01-15/AA100/JFK-LAX/1200", a.Key())
}
