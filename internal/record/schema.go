package record

// Kind is the declared type of a column.
type Kind int

const (
	Uint8 Kind = iota
	Uint16
	Int16
	Text
)

func (k Kind) bits() int {
	switch k {
	case Uint8:
		return 8
	default:
		return 16
	}
}

func (k Kind) String() string {
	switch k {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	default:
		return "text"
	}
}

// Policy decides what happens when a present column fails to convert.
type Policy int

const (
	// Strict rejects the whole row.
	Strict Policy = iota
	// Lenient substitutes the zero value of the column's kind.
	Lenient
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Field describes one column of the flight CSV. Min and Max bound strict
// numeric columns; a zero Max means the kind's own range.
type Field struct {
	Name   string
	Kind   Kind
	Policy Policy
	Min    int64
	Max    int64

	setInt  func(*Flight, int64)
	setText func(*Flight, string)
}

// Schema is the column table in file order. Date columns are strict, every
// measurement column is lenient and defaults to zero, text columns only fail
// when absent.
var Schema = []Field{
	{Name: "year", Kind: Uint16, Policy: Strict, Min: 1, Max: 9999, setInt: func(f *Flight, v int64) { f.Year = uint16(v) }},
	{Name: "month", Kind: Uint8, Policy: Strict, Min: 1, Max: 12, setInt: func(f *Flight, v int64) { f.Month = uint8(v) }},
	{Name: "day", Kind: Uint8, Policy: Strict, Min: 1, Max: 31, setInt: func(f *Flight, v int64) { f.Day = uint8(v) }},
	{Name: "day_of_week", Kind: Uint8, Policy: Strict, Min: 1, Max: 7, setInt: func(f *Flight, v int64) { f.DayOfWeek = uint8(v) }},
	{Name: "scheduled_departure", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.ScheduledDeparture = uint16(v) }},
	{Name: "actual_departure", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.ActualDeparture = uint16(v) }},
	{Name: "scheduled_arrival", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.ScheduledArrival = uint16(v) }},
	{Name: "actual_arrival", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.ActualArrival = uint16(v) }},
	{Name: "airline_code", Kind: Text, Policy: Lenient, setText: func(f *Flight, s string) { f.AirlineCode = s }},
	{Name: "flight_number", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.FlightNumber = uint16(v) }},
	{Name: "aircraft_registration", Kind: Text, Policy: Lenient, setText: func(f *Flight, s string) { f.AircraftRegistration = s }},
	{Name: "scheduled_flight_time", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.ScheduledFlightTime = uint16(v) }},
	{Name: "actual_flight_time", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.ActualFlightTime = uint16(v) }},
	{Name: "air_time", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.AirTime = uint16(v) }},
	{Name: "departure_delay", Kind: Int16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.DepartureDelay = int16(v) }},
	{Name: "arrival_delay", Kind: Int16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.ArrivalDelay = int16(v) }},
	{Name: "origin_airport", Kind: Text, Policy: Lenient, setText: func(f *Flight, s string) { f.OriginAirport = s }},
	{Name: "destination_airport", Kind: Text, Policy: Lenient, setText: func(f *Flight, s string) { f.DestinationAirport = s }},
	{Name: "distance", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.Distance = uint16(v) }},
	{Name: "taxi_out", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.TaxiOut = uint16(v) }},
	{Name: "taxi_in", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.TaxiIn = uint16(v) }},
	{Name: "carrier_delay", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.CarrierDelay = uint16(v) }},
	{Name: "weather_delay", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.WeatherDelay = uint16(v) }},
	{Name: "security_delay", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.SecurityDelay = uint16(v) }},
	{Name: "nas_delay", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.NASDelay = uint16(v) }},
	{Name: "other_delay", Kind: Uint16, Policy: Lenient, setInt: func(f *Flight, v int64) { f.OtherDelay = uint16(v) }},
}

// FieldCount is the number of columns a row must have.
var FieldCount = len(Schema)

// StrictFields lists the columns whose conversion failure rejects a row.
func StrictFields() []string {
	var names []string
	for _, f := range Schema {
		if f.Policy == Strict {
			names = append(names, f.Name)
		}
	}
	return names
}

// ColumnIndex returns the position of the named column, or -1.
func ColumnIndex(name string) int {
	for i, f := range Schema {
		if f.Name == name {
			return i
		}
	}
	return -1
}
