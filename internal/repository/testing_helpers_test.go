package repository

import (
	"context"
	"io"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"climate-api/internal/models"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

type testStore struct {
	db       *database.DB
	climate  ClimateRepository
	dataset  DatasetRepository
	metrics  *metrics.Collector
	registry *prometheus.Registry
	sqlxConn *sqlx.DB
}

// setupTestStore opens an in-memory sqlite database with the climate schema.
// One pooled connection keeps the in-memory database alive between sessions.
func setupTestStore(t *testing.T) *testStore {
	t.Helper()

	sqlxDB, err := sqlx.Open(database.DriverSQLite, ":memory:")
	require.NoError(t, err)
	sqlxDB.SetMaxOpenConns(1)

	logger := logging.NewStructuredLoggerWithOutput("test", "0.0.0", logging.DebugLevel, io.Discard)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", registry)
	db := database.New(sqlxDB, nil, logger, collector)
	t.Cleanup(func() { _ = db.Close() })

	store := &testStore{
		db:       db,
		climate:  NewClimateRepository(db, logger, collector),
		dataset:  NewDatasetRepository(db, logger, collector),
		metrics:  collector,
		registry: registry,
		sqlxConn: sqlxDB,
	}
	require.NoError(t, store.dataset.EnsureSchema(context.Background()))

	return store
}

func f(v float64) *float64 { return &v }

func (s *testStore) addMeasurements(t *testing.T, measurements ...*models.Measurement) {
	t.Helper()
	require.NoError(t, s.dataset.CreateMeasurementsBatch(context.Background(), measurements))
}

func (s *testStore) addStations(t *testing.T, stations ...*models.Station) {
	t.Helper()
	require.NoError(t, s.dataset.CreateStationsBatch(context.Background(), stations))
}

func measurement(station, date string, prcp, tobs *float64) *models.Measurement {
	return &models.Measurement{
		StationID:              station,
		Date:                   date,
		Precipitation:          prcp,
		TemperatureObservation: tobs,
	}
}

func strPtr(s string) *string { return &s }

// queryDurationCount returns how many observations the query duration
// histogram holds for queryType.
func (s *testStore) queryDurationCount(t *testing.T, queryType string) uint64 {
	t.Helper()

	families, err := s.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "test_db_query_duration_seconds" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "query_type" && label.GetValue() == queryType {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}
