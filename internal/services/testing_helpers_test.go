package services

import (
	"context"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"climate-api/internal/models"
	"climate-api/internal/repository"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

type testEnv struct {
	climate repository.ClimateRepository
	dataset repository.DatasetRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sqlxDB, err := sqlx.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	sqlxDB.SetMaxOpenConns(1)

	logger := logging.NewStructuredLoggerWithOutput("test", "0.0.0", logging.DebugLevel, io.Discard)
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	db := database.New(sqlxDB, nil, logger, collector)
	t.Cleanup(func() { _ = db.Close() })

	env := &testEnv{
		climate: repository.NewClimateRepository(db, logger, collector),
		dataset: repository.NewDatasetRepository(db, logger, collector),
		logger:  logger,
		metrics: collector,
	}
	require.NoError(t, env.dataset.EnsureSchema(context.Background()))

	return env
}

func (e *testEnv) addMeasurements(t *testing.T, measurements ...*models.Measurement) {
	t.Helper()
	require.NoError(t, e.dataset.CreateMeasurementsBatch(context.Background(), measurements))
}

func f(v float64) *float64 { return &v }

func strPtr(s string) *string { return &s }

func measurement(station, date string, prcp, tobs *float64) *models.Measurement {
	return &models.Measurement{
		StationID:              station,
		Date:                   date,
		Precipitation:          prcp,
		TemperatureObservation: tobs,
	}
}
