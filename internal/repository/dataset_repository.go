package repository

import (
	"context"
	"fmt"

	"climate-api/internal/models"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// DatasetRepository writes the station and measurement tables. It is used
// by the offline loader only; the API never writes.
type DatasetRepository interface {
	EnsureSchema(ctx context.Context) error
	CreateStationsBatch(ctx context.Context, stations []*models.Station) error
	CreateMeasurementsBatch(ctx context.Context, measurements []*models.Measurement) error
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS station (
	id        INTEGER PRIMARY KEY,
	station   TEXT NOT NULL,
	name      TEXT,
	latitude  FLOAT,
	longitude FLOAT,
	elevation FLOAT
);
CREATE TABLE IF NOT EXISTS measurement (
	id      INTEGER PRIMARY KEY,
	station TEXT NOT NULL,
	date    TEXT NOT NULL,
	prcp    FLOAT,
	tobs    FLOAT
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS station (
	id        SERIAL PRIMARY KEY,
	station   TEXT NOT NULL,
	name      TEXT,
	latitude  DOUBLE PRECISION,
	longitude DOUBLE PRECISION,
	elevation DOUBLE PRECISION
);
CREATE TABLE IF NOT EXISTS measurement (
	id      SERIAL PRIMARY KEY,
	station TEXT NOT NULL,
	date    DATE NOT NULL,
	prcp    DOUBLE PRECISION,
	tobs    DOUBLE PRECISION
);
`

// datasetRepository implements DatasetRepository
type datasetRepository struct {
	db      *database.DB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewDatasetRepository creates a new dataset repository
func NewDatasetRepository(db *database.DB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) DatasetRepository {
	return &datasetRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// EnsureSchema creates the station and measurement tables when absent
func (r *datasetRepository) EnsureSchema(ctx context.Context) error {
	schema := sqliteSchema
	if r.db.DriverName() == database.DriverPostgres {
		schema = postgresSchema
	}

	if _, err := r.db.ExecContext(ctx, "ensure_schema", schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_SCHEMA] Schema ensured", logging.Fields{
		"driver": r.db.DriverName(),
	})

	return nil
}

// CreateStationsBatch inserts stations in a single transaction
func (r *datasetRepository) CreateStationsBatch(ctx context.Context, stations []*models.Station) error {
	query := `
		INSERT INTO station (station, name, latitude, longitude, elevation)
		VALUES (?, ?, ?, ?, ?)
	`

	rows := make([][]interface{}, 0, len(stations))
	for _, s := range stations {
		rows = append(rows, []interface{}{s.StationID, s.Name, s.Latitude, s.Longitude, s.Elevation})
	}

	if err := r.insertBatch(ctx, "station", query, rows); err != nil {
		return fmt.Errorf("failed to insert stations: %w", err)
	}
	return nil
}

// CreateMeasurementsBatch inserts measurements in a single transaction
func (r *datasetRepository) CreateMeasurementsBatch(ctx context.Context, measurements []*models.Measurement) error {
	query := `
		INSERT INTO measurement (station, date, prcp, tobs)
		VALUES (?, ?, ?, ?)
	`

	rows := make([][]interface{}, 0, len(measurements))
	for _, m := range measurements {
		rows = append(rows, []interface{}{m.StationID, m.Date, m.Precipitation, m.TemperatureObservation})
	}

	if err := r.insertBatch(ctx, "measurement", query, rows); err != nil {
		return fmt.Errorf("failed to insert measurements: %w", err)
	}
	return nil
}

func (r *datasetRepository) insertBatch(ctx context.Context, table, query string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}

	timer := r.metrics.NewTimer(r.metrics.DBQueryDuration.WithLabelValues("insert_" + table))
	defer func() {
		duration := timer.ObserveDuration()
		r.metrics.LoaderBatchSize.Observe(float64(len(rows)))
		r.logger.Debug(ctx, "[REPO_BATCH_INSERT] Batch insert completed", logging.Fields{
			"table":       table,
			"count":       len(rows),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, args := range rows {
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert %s row: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.LoaderRecordsTotal.WithLabelValues(table).Add(float64(len(rows)))

	return nil
}
