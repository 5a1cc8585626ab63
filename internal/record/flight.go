// Package record holds the flight record schema and the row parser.
package record

import (
	"fmt"

	"github.com/google/uuid"
)

// RawLine is one line of the source object together with its 1-based line
// number (the header is line 1).
type RawLine struct {
	Number int64
	Text   string
}

// Flight is one row of the on-time performance dataset. Durations and delays
// are in minutes, clock times are HHMM.
type Flight struct {
	Year                 uint16 `json:"year" bson:"year" dynamodbav:"year"`
	Month                uint8  `json:"month" bson:"month" dynamodbav:"month"`
	Day                  uint8  `json:"day" bson:"day" dynamodbav:"day"`
	DayOfWeek            uint8  `json:"day_of_week" bson:"day_of_week" dynamodbav:"day_of_week"`
	ScheduledDeparture   uint16 `json:"scheduled_departure" bson:"scheduled_departure" dynamodbav:"scheduled_departure"`
	ActualDeparture      uint16 `json:"actual_departure" bson:"actual_departure" dynamodbav:"actual_departure"`
	ScheduledArrival     uint16 `json:"scheduled_arrival" bson:"scheduled_arrival" dynamodbav:"scheduled_arrival"`
	ActualArrival        uint16 `json:"actual_arrival" bson:"actual_arrival" dynamodbav:"actual_arrival"`
	AirlineCode          string `json:"airline_code" bson:"airline_code" dynamodbav:"airline_code"`
	FlightNumber         uint16 `json:"flight_number" bson:"flight_number" dynamodbav:"flight_number"`
	AircraftRegistration string `json:"aircraft_registration" bson:"aircraft_registration" dynamodbav:"aircraft_registration"`
	ScheduledFlightTime  uint16 `json:"scheduled_flight_time" bson:"scheduled_flight_time" dynamodbav:"scheduled_flight_time"`
	ActualFlightTime     uint16 `json:"actual_flight_time" bson:"actual_flight_time" dynamodbav:"actual_flight_time"`
	AirTime              uint16 `json:"air_time" bson:"air_time" dynamodbav:"air_time"`
	DepartureDelay       int16  `json:"departure_delay" bson:"departure_delay" dynamodbav:"departure_delay"`
	ArrivalDelay         int16  `json:"arrival_delay" bson:"arrival_delay" dynamodbav:"arrival_delay"`
	OriginAirport        string `json:"origin_airport" bson:"origin_airport" dynamodbav:"origin_airport"`
	DestinationAirport   string `json:"destination_airport" bson:"destination_airport" dynamodbav:"destination_airport"`
	Distance             uint16 `json:"distance" bson:"distance" dynamodbav:"distance"`
	TaxiOut              uint16 `json:"taxi_out" bson:"taxi_out" dynamodbav:"taxi_out"`
	TaxiIn               uint16 `json:"taxi_in" bson:"taxi_in" dynamodbav:"taxi_in"`
	CarrierDelay         uint16 `json:"carrier_delay" bson:"carrier_delay" dynamodbav:"carrier_delay"`
	WeatherDelay         uint16 `json:"weather_delay" bson:"weather_delay" dynamodbav:"weather_delay"`
	SecurityDelay        uint16 `json:"security_delay" bson:"security_delay" dynamodbav:"security_delay"`
	NASDelay             uint16 `json:"nas_delay" bson:"nas_delay" dynamodbav:"nas_delay"`
	OtherDelay           uint16 `json:"other_delay" bson:"other_delay" dynamodbav:"other_delay"`
}

var idNamespace = uuid.MustParse("6f1d3c8e-2b0a-4c55-9a51-0c3f6f0e7a21")

// Key is the natural key of a flight leg: date, carrier and flight number,
// route and scheduled departure.
func (f *Flight) Key() string {
	return fmt.Sprintf("%04d-%02d-%02d/%s%d/%s-%s/%04d",
		f.Year, f.Month, f.Day,
		f.AirlineCode, f.FlightNumber,
		f.OriginAirport, f.DestinationAirport,
		f.ScheduledDeparture)
}

// ID derives a stable UUID from Key, so re-ingesting the same file collides
// on the primary key instead of duplicating rows.
func (f *Flight) ID() uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(f.Key()))
}
