package services

import (
	"context"
	"fmt"
	"time"

	"climate-api/internal/models"
	"climate-api/internal/repository"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// WindowDays is the length of the rolling window ending at the latest measurement
const WindowDays = 365

// WindowStart returns the first date of the rolling window ending at latest
func WindowStart(latest time.Time) time.Time {
	return latest.AddDate(0, 0, -WindowDays)
}

// ObservationService serves the rolling-window and station endpoints
type ObservationService struct {
	repo    repository.ClimateRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewObservationService creates a new observation service
func NewObservationService(repo repository.ClimateRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ObservationService {
	return &ObservationService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// RollingWindowStart returns the start date of the 12-month window ending at
// the most recent measurement, formatted as YYYY-MM-DD
func (s *ObservationService) RollingWindowStart(ctx context.Context) (string, error) {
	latest, err := s.repo.LatestMeasurementDate(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve rolling window: %w", err)
	}

	start := WindowStart(latest).Format(models.DateLayout)

	s.logger.Debug(ctx, "[SERVICE_WINDOW] Rolling window resolved", logging.Fields{
		"latest": latest.Format(models.DateLayout),
		"start":  start,
	})

	return start, nil
}

// Precipitation returns every (date, prcp) pair inside the rolling window
func (s *ObservationService) Precipitation(ctx context.Context) ([]models.DateValue, error) {
	start, err := s.RollingWindowStart(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.Precipitation(ctx, start)
}

// Stations returns all station names
func (s *ObservationService) Stations(ctx context.Context) ([]*string, error) {
	return s.repo.StationNames(ctx)
}

// MostActiveStationTemperatures returns the rolling-window temperature
// observations of the station with the most temperature readings
func (s *ObservationService) MostActiveStationTemperatures(ctx context.Context) ([]models.DateValue, error) {
	activity, err := s.repo.MostActiveStation(ctx)
	if err != nil {
		return nil, err
	}

	start, err := s.RollingWindowStart(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "[SERVICE_TOBS] Most active station selected", logging.Fields{
		"station":           activity.StationID,
		"observation_count": activity.ObservationCount,
		"start":             start,
	})

	return s.repo.TemperatureObservations(ctx, activity.StationID, start)
}

// HealthCheck verifies the store is reachable
func (s *ObservationService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
