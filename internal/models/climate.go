package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used by the measurement table.
// Dates in this format sort lexically, so the store can range-compare them.
const DateLayout = "2006-01-02"

// Station represents a weather reporting site
type Station struct {
	ID        int64    `json:"id" db:"id"`
	StationID string   `json:"station" db:"station"`
	Name      string   `json:"name" db:"name"`
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`
	Elevation *float64 `json:"elevation,omitempty" db:"elevation"`
}

// Measurement represents one daily reading for a station.
// NULL readings are represented as nil pointers.
type Measurement struct {
	ID                     int64    `json:"id" db:"id"`
	StationID              string   `json:"station" db:"station"`
	Date                   string   `json:"date" db:"date"`
	Precipitation          *float64 `json:"prcp" db:"prcp"`
	TemperatureObservation *float64 `json:"tobs" db:"tobs"`
}

// DateValue is a single (date, reading) pair. It encodes as a one-key
// JSON object {"<date>": value} so that an ordered slice keeps
// duplicate dates from different stations.
type DateValue struct {
	Date  string   `db:"date"`
	Value *float64 `db:"value"`
}

// MarshalJSON encodes the pair as {"<date>": value}
func (d DateValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]*float64{d.Date: d.Value})
}

// StationActivity is a station with its count of non-null temperature observations
type StationActivity struct {
	StationID        string `json:"station" db:"station"`
	ObservationCount int64  `json:"observation_count" db:"observation_count"`
}

// TemperatureStats holds the aggregate temperature statistics of a date range.
// Min, Max and Mean are nil when the range holds no temperature observations.
type TemperatureStats struct {
	Count int64    `json:"Count" db:"tobs_count"`
	Min   *float64 `json:"Min" db:"tobs_min"`
	Max   *float64 `json:"Max" db:"tobs_max"`
	Mean  *float64 `json:"Mean" db:"tobs_mean"`
}

// RawStationRecord represents a single row of the stations CSV file
type RawStationRecord struct {
	Station   string
	Name      string
	Latitude  string
	Longitude string
	Elevation string
}

// ToStation converts RawStationRecord to Station
func (r *RawStationRecord) ToStation() (*Station, error) {
	stationID := strings.TrimSpace(r.Station)
	if stationID == "" {
		return nil, &ValidationError{
			Field:   "station",
			Value:   r.Station,
			Message: "station id is required",
		}
	}

	station := &Station{
		StationID: stationID,
		Name:      strings.TrimSpace(r.Name),
	}

	var err error
	if station.Latitude, err = parseOptionalFloat("latitude", r.Latitude); err != nil {
		return nil, err
	}
	if station.Longitude, err = parseOptionalFloat("longitude", r.Longitude); err != nil {
		return nil, err
	}
	if station.Elevation, err = parseOptionalFloat("elevation", r.Elevation); err != nil {
		return nil, err
	}

	return station, nil
}

// RawMeasurementRecord represents a single row of the measurements CSV file
type RawMeasurementRecord struct {
	Station                string
	Date                   string
	Precipitation          string
	TemperatureObservation string
}

// ToMeasurement converts RawMeasurementRecord to Measurement.
// Empty readings become NULL.
func (r *RawMeasurementRecord) ToMeasurement() (*Measurement, error) {
	stationID := strings.TrimSpace(r.Station)
	if stationID == "" {
		return nil, &ValidationError{
			Field:   "station",
			Value:   r.Station,
			Message: "station id is required",
		}
	}

	date, err := time.Parse(DateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		return nil, &ValidationError{
			Field:   "date",
			Value:   r.Date,
			Message: "invalid date format, expected YYYY-MM-DD",
		}
	}

	m := &Measurement{
		StationID: stationID,
		Date:      date.Format(DateLayout),
	}

	if m.Precipitation, err = parseOptionalFloat("prcp", r.Precipitation); err != nil {
		return nil, err
	}
	if m.TemperatureObservation, err = parseOptionalFloat("tobs", r.TemperatureObservation); err != nil {
		return nil, err
	}

	return m, nil
}

func parseOptionalFloat(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "nan") {
		return nil, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ValidationError{
			Field:   field,
			Value:   raw,
			Message: "invalid " + field + " value, expected a number",
		}
	}
	return &v, nil
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
