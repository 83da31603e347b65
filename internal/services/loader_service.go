package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"climate-api/internal/models"
	"climate-api/internal/repository"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// DefaultBatchSize is the number of rows inserted per transaction
const DefaultBatchSize = 1000

var (
	stationColumns     = []string{"station", "name", "latitude", "longitude", "elevation"}
	measurementColumns = []string{"station", "date", "prcp", "tobs"}
)

// LoaderService loads the station and measurement CSV files into the store
type LoaderService struct {
	repo    repository.DatasetRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// LoadResult contains per-file load statistics
type LoadResult struct {
	File              string
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	Duration          time.Duration
}

// DatasetResult contains the load statistics of a whole dataset
type DatasetResult struct {
	Stations     *LoadResult
	Measurements *LoadResult
	Duration     time.Duration
}

// NewLoaderService creates a new loader service
func NewLoaderService(repo repository.DatasetRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *LoaderService {
	return &LoaderService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// LoadDataset creates the tables when absent and loads both CSV files
func (s *LoaderService) LoadDataset(ctx context.Context, stationsPath, measurementsPath string, batchSize int) (*DatasetResult, error) {
	startTime := time.Now()

	s.logger.Info(ctx, "[LOADER_START] Starting dataset load", logging.Fields{
		"stations_file":     stationsPath,
		"measurements_file": measurementsPath,
		"batch_size":        batchSize,
		"stage":             "INITIALIZATION",
	})

	if err := s.repo.EnsureSchema(ctx); err != nil {
		s.metrics.RecordLoaderError("schema_error")
		return nil, err
	}

	stations, err := s.loadFile(ctx, stationsPath, batchSize, s.LoadStations)
	if err != nil {
		return nil, err
	}

	measurements, err := s.loadFile(ctx, measurementsPath, batchSize, s.LoadMeasurements)
	if err != nil {
		return nil, err
	}

	result := &DatasetResult{
		Stations:     stations,
		Measurements: measurements,
		Duration:     time.Since(startTime),
	}

	s.logger.Info(ctx, "[LOADER_COMPLETE] Dataset load completed", logging.Fields{
		"stations_loaded":     stations.SuccessfulRecords,
		"stations_failed":     stations.FailedRecords,
		"measurements_loaded": measurements.SuccessfulRecords,
		"measurements_failed": measurements.FailedRecords,
		"duration_seconds":    result.Duration.Seconds(),
		"stage":               "COMPLETE",
	})

	return result, nil
}

func (s *LoaderService) loadFile(ctx context.Context, path string, batchSize int,
	load func(context.Context, io.Reader, int) (*LoadResult, error)) (*LoadResult, error) {
	fileLogger := s.logger.WithFields(logging.Fields{"file_path": path})

	file, err := os.Open(path)
	if err != nil {
		s.metrics.RecordLoaderError("file_error")
		fileLogger.Error(ctx, "[LOADER_FILE_ERROR] Failed to open file", logging.Fields{
			"stage": "FILE_OPEN",
		}, err)
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	result, err := load(ctx, file, batchSize)
	if err != nil {
		fileLogger.Error(ctx, "[LOADER_FILE_ERROR] File load failed", logging.Fields{
			"stage": "FILE_PROCESSING",
		}, err)
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	result.File = path

	fileLogger.Info(ctx, "[LOADER_FILE_SUCCESS] File loaded", logging.Fields{
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"stage":              "FILE_COMPLETE",
	})

	return result, nil
}

// LoadStations reads station rows from r and inserts them in batches.
// Rows that fail validation are counted and skipped.
func (s *LoaderService) LoadStations(ctx context.Context, r io.Reader, batchSize int) (*LoadResult, error) {
	startTime := time.Now()
	result := &LoadResult{}
	batch := make([]*models.Station, 0, normalizeBatchSize(batchSize))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.CreateStationsBatch(ctx, batch); err != nil {
			s.metrics.RecordLoaderError("insert_error")
			return err
		}
		result.SuccessfulRecords += len(batch)
		batch = batch[:0]
		return nil
	}

	err := s.readRows(ctx, r, stationColumns, result, func(line int, row map[string]string) error {
		raw := &models.RawStationRecord{
			Station:   row["station"],
			Name:      row["name"],
			Latitude:  row["latitude"],
			Longitude: row["longitude"],
			Elevation: row["elevation"],
		}

		station, err := raw.ToStation()
		if err != nil {
			s.rejectRow(ctx, result, line, err)
			return nil
		}

		batch = append(batch, station)
		if len(batch) >= cap(batch) {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// LoadMeasurements reads measurement rows from r and inserts them in batches.
// Empty prcp or tobs cells are stored as NULL.
func (s *LoaderService) LoadMeasurements(ctx context.Context, r io.Reader, batchSize int) (*LoadResult, error) {
	startTime := time.Now()
	result := &LoadResult{}
	batch := make([]*models.Measurement, 0, normalizeBatchSize(batchSize))

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.CreateMeasurementsBatch(ctx, batch); err != nil {
			s.metrics.RecordLoaderError("insert_error")
			return err
		}
		result.SuccessfulRecords += len(batch)
		batch = batch[:0]
		return nil
	}

	err := s.readRows(ctx, r, measurementColumns, result, func(line int, row map[string]string) error {
		raw := &models.RawMeasurementRecord{
			Station:                row["station"],
			Date:                   row["date"],
			Precipitation:          row["prcp"],
			TemperatureObservation: row["tobs"],
		}

		m, err := raw.ToMeasurement()
		if err != nil {
			s.rejectRow(ctx, result, line, err)
			return nil
		}

		batch = append(batch, m)
		if len(batch) >= cap(batch) {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := flush(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// readRows streams CSV records keyed by header name into fn. The header must
// contain every required column; extra columns are ignored.
func (s *LoaderService) readRows(ctx context.Context, r io.Reader, required []string, result *LoadResult,
	fn func(line int, row map[string]string) error) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("missing CSV header")
		}
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			s.metrics.RecordLoaderError("header_error")
			return fmt.Errorf("missing CSV column %q", name)
		}
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}

		result.TotalRecords++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			s.metrics.RecordLoaderError("parse_error")
			result.FailedRecords++
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		row := make(map[string]string, len(required))
		for _, name := range required {
			if i := columns[name]; i < len(record) {
				row[name] = record[i]
			}
		}

		if err := fn(line, row); err != nil {
			return err
		}
	}
}

func (s *LoaderService) rejectRow(ctx context.Context, result *LoadResult, line int, err error) {
	result.FailedRecords++
	s.metrics.RecordLoaderError("validation_error")

	fields := logging.Fields{"line": line}
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		fields["field"] = validationErr.Field
		fields["value"] = validationErr.Value
	}
	s.logger.Warn(ctx, "[LOADER_ROW_REJECTED] "+err.Error(), fields)
}

func normalizeBatchSize(batchSize int) int {
	if batchSize <= 0 {
		return DefaultBatchSize
	}
	return batchSize
}
