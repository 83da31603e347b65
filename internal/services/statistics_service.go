package services

import (
	"context"
	"strconv"

	"climate-api/internal/models"
	"climate-api/internal/repository"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// StatisticsService computes temperature statistics over date ranges
type StatisticsService struct {
	repo    repository.ClimateRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.ClimateRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// TemperatureStats returns count, min, max and mean temperature for dates
// >= start and, when end is non-nil, <= end. Mean is rounded to one decimal.
func (s *StatisticsService) TemperatureStats(ctx context.Context, start string, end *string) (*models.TemperatureStats, error) {
	stats, err := s.repo.TemperatureStats(ctx, repository.DateRange{Start: &start, End: end})
	if err != nil {
		return nil, err
	}

	if stats.Mean != nil {
		rounded := roundTenths(*stats.Mean)
		stats.Mean = &rounded
	}

	fields := logging.Fields{
		"start": start,
		"count": stats.Count,
	}
	if end != nil {
		fields["end"] = *end
	}
	s.logger.Debug(ctx, "[SERVICE_STATS] Temperature statistics calculated", fields)

	return stats, nil
}

// roundTenths rounds the exact binary value of v to one decimal, ties to even.
// Scaling by 10 first would round a different value.
func roundTenths(v float64) float64 {
	rounded, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return rounded
}
