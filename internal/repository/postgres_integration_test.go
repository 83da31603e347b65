//go:build integration

package repository

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"climate-api/internal/models"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

func startPostgres(t *testing.T) *database.Config {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "climate",
				"POSTGRES_PASSWORD": "climate",
				"POSTGRES_DB":       "hawaii",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return &database.Config{
		Driver:       database.DriverPostgres,
		Host:         host,
		Port:         port.Int(),
		User:         "climate",
		Password:     "climate",
		Database:     "hawaii",
		SSLMode:      "disable",
		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
}

func TestPostgres_ClimateQueries(t *testing.T) {
	cfg := startPostgres(t)
	ctx := context.Background()

	logger := logging.NewStructuredLoggerWithOutput("test", "0.0.0", logging.DebugLevel, io.Discard)
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	db, err := database.Open(cfg, logger, collector)
	require.NoError(t, err)
	defer db.Close()

	dataset := NewDatasetRepository(db, logger, collector)
	climate := NewClimateRepository(db, logger, collector)

	require.NoError(t, dataset.EnsureSchema(ctx))
	require.NoError(t, dataset.CreateStationsBatch(ctx, []*models.Station{
		{StationID: "A", Name: "Alpha"},
		{StationID: "B", Name: "Beta"},
	}))
	require.NoError(t, dataset.CreateMeasurementsBatch(ctx, []*models.Measurement{
		measurement("A", "2016-08-22", f(1.0), f(40)),
		measurement("A", "2017-01-01", f(0.1), f(58)),
		measurement("A", "2017-01-02", nil, f(60)),
		measurement("B", "2017-01-02", f(0.3), nil),
		measurement("A", "2017-08-23", f(0.0), f(62)),
	}))

	latest, err := climate.LatestMeasurementDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2017-08-23", latest.Format(models.DateLayout))

	precipitation, err := climate.Precipitation(ctx, "2017-01-01")
	require.NoError(t, err)
	assert.Len(t, precipitation, 4)
	assert.Equal(t, "2017-01-01", precipitation[0].Date)

	names, err := climate.StationNames(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []*string{strPtr("Alpha"), strPtr("Beta")}, names)

	activity, err := climate.MostActiveStation(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", activity.StationID)

	stats, err := climate.TemperatureStats(ctx, DateRange{Start: strPtr("2017-01-01"), End: strPtr("2017-01-02")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)
	assert.Equal(t, 58.0, *stats.Min)
	assert.Equal(t, 60.0, *stats.Max)
	assert.Equal(t, 59.0, *stats.Mean)

	// PostgreSQL coerces the bound to DATE and rejects malformed input.
	_, err = climate.TemperatureStats(ctx, DateRange{Start: strPtr("not-a-date")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyResult)
}
