package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"climate-api/internal/models"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// ClimateRepository provides read-only access to the measurement and station tables
type ClimateRepository interface {
	// Measurement operations
	LatestMeasurementDate(ctx context.Context) (time.Time, error)
	Precipitation(ctx context.Context, since string) ([]models.DateValue, error)
	MostActiveStation(ctx context.Context) (*models.StationActivity, error)
	TemperatureObservations(ctx context.Context, stationID, since string) ([]models.DateValue, error)

	// Station operations
	StationNames(ctx context.Context) ([]*string, error)

	// Statistics operations
	TemperatureStats(ctx context.Context, dateRange DateRange) (*models.TemperatureStats, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// DateRange bounds a temperature statistics query. Nil bounds are open.
// Bounds are passed to the store verbatim; no date validation is done.
type DateRange struct {
	Start *string
	End   *string
}

// climateRepository implements ClimateRepository
type climateRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewClimateRepository creates a new climate repository
func NewClimateRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) ClimateRepository {
	return &climateRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// withSession runs fn on a session that is released on every return path
func (r *climateRepository) withSession(ctx context.Context, fn func(*database.Session) error) error {
	session, err := r.db.Session(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			r.logger.Warn(ctx, "[REPO_SESSION_CLOSE] Failed to release session", logging.Fields{
				"error": closeErr.Error(),
			})
		}
	}()

	return fn(session)
}

// LatestMeasurementDate returns the most recent date in the measurement table
func (r *climateRepository) LatestMeasurementDate(ctx context.Context) (time.Time, error) {
	query := `SELECT CAST(MAX(date) AS TEXT) FROM measurement`

	var latest sql.NullString
	err := r.withSession(ctx, func(s *database.Session) error {
		return s.GetContext(ctx, "latest_measurement_date", &latest, query)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest measurement date: %w", err)
	}

	if !latest.Valid {
		return time.Time{}, &EmptyResultError{Query: "latest_measurement_date"}
	}

	date, err := parseStoreDate(latest.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse latest measurement date: %w", err)
	}

	return date, nil
}

// Precipitation returns (date, prcp) for every measurement on or after since,
// in store order. Dates shared by several stations appear once per row.
func (r *climateRepository) Precipitation(ctx context.Context, since string) ([]models.DateValue, error) {
	query := `
		SELECT CAST(date AS TEXT) AS date, prcp AS value
		FROM measurement
		WHERE date >= ?
	`

	values := []models.DateValue{}
	err := r.withSession(ctx, func(s *database.Session) error {
		return s.SelectContext(ctx, "precipitation_since", &values, query, since)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get precipitation: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_PRECIPITATION] Precipitation rows fetched", logging.Fields{
		"since": since,
		"rows":  len(values),
	})

	return values, nil
}

// StationNames returns every station name in store order. A NULL name
// stays nil so it serializes as JSON null.
func (r *climateRepository) StationNames(ctx context.Context) ([]*string, error) {
	query := `SELECT name FROM station`

	var rows []sql.NullString
	err := r.withSession(ctx, func(s *database.Session) error {
		return s.SelectContext(ctx, "station_names", &rows, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list station names: %w", err)
	}

	names := make([]*string, 0, len(rows))
	for _, row := range rows {
		if !row.Valid {
			names = append(names, nil)
			continue
		}
		name := row.String
		names = append(names, &name)
	}

	return names, nil
}

// MostActiveStation returns the station with the most non-null temperature
// observations. Ties go to the lowest station id.
func (r *climateRepository) MostActiveStation(ctx context.Context) (*models.StationActivity, error) {
	query := `
		SELECT station, COUNT(tobs) AS observation_count
		FROM measurement
		GROUP BY station
		ORDER BY observation_count DESC, station ASC
		LIMIT 1
	`

	var activity models.StationActivity
	err := r.withSession(ctx, func(s *database.Session) error {
		return s.GetContext(ctx, "most_active_station", &activity, query)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &EmptyResultError{Query: "most_active_station"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get most active station: %w", err)
	}

	return &activity, nil
}

// TemperatureObservations returns (date, tobs) for one station on or after since
func (r *climateRepository) TemperatureObservations(ctx context.Context, stationID, since string) ([]models.DateValue, error) {
	query := `
		SELECT CAST(date AS TEXT) AS date, tobs AS value
		FROM measurement
		WHERE station = ? AND date >= ?
	`

	values := []models.DateValue{}
	err := r.withSession(ctx, func(s *database.Session) error {
		return s.SelectContext(ctx, "temperature_observations", &values, query, stationID, since)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get temperature observations: %w", err)
	}

	return values, nil
}

// TemperatureStats computes count/min/max/avg of tobs over the date range.
// NULL readings are skipped by the aggregates. An empty range yields
// Count 0 with nil Min, Max and Mean.
func (r *climateRepository) TemperatureStats(ctx context.Context, dateRange DateRange) (*models.TemperatureStats, error) {
	timer := r.metrics.NewTimer(r.metrics.StatsCalculationDuration)
	defer func() {
		duration := timer.ObserveDuration()
		r.logger.Debug(ctx, "[REPO_CALC_STATS] Temperature statistics calculated", logging.Fields{
			"start":       stringOrNil(dateRange.Start),
			"end":         stringOrNil(dateRange.End),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	query := `
		SELECT
			COUNT(tobs) AS tobs_count,
			MIN(tobs) AS tobs_min,
			MAX(tobs) AS tobs_max,
			AVG(tobs) AS tobs_mean
		FROM measurement
		WHERE 1=1
	`
	args := []interface{}{}

	if dateRange.Start != nil {
		query += " AND date >= ?"
		args = append(args, *dateRange.Start)
	}

	if dateRange.End != nil {
		query += " AND date <= ?"
		args = append(args, *dateRange.End)
	}

	var stats models.TemperatureStats
	err := r.withSession(ctx, func(s *database.Session) error {
		return s.GetContext(ctx, "temperature_stats", &stats, query, args...)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &EmptyResultError{Query: "temperature_stats"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to calculate temperature statistics: %w", err)
	}

	return &stats, nil
}

// HealthCheck performs a repository health check
func (r *climateRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// parseStoreDate accepts "YYYY-MM-DD" with or without a trailing time part
func parseStoreDate(s string) (time.Time, error) {
	if len(s) > len(models.DateLayout) {
		s = s[:len(models.DateLayout)]
	}
	return time.Parse(models.DateLayout, s)
}

func stringOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
