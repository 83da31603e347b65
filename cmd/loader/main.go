package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"climate-api/internal/config"
	"climate-api/internal/repository"
	"climate-api/internal/services"
	"climate-api/pkg/database"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Parse command-line flags
	stationsFile := flag.String("stations", "resources/hawaii_stations.csv", "CSV file with station rows")
	measurementsFile := flag.String("measurements", "resources/hawaii_measurements.csv", "CSV file with measurement rows")
	batchSize := flag.Int("batch-size", services.DefaultBatchSize, "Number of rows inserted per transaction")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.NewStructuredLogger("climate-loader", version, logLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[LOADER_INIT] Starting climate dataset loader", logging.Fields{
		"version":           version,
		"stations_file":     *stationsFile,
		"measurements_file": *measurementsFile,
		"batch_size":        *batchSize,
		"db_driver":         cfg.Database.Driver,
	})

	// The loader runs once, so its metrics are only summarised in the log
	metricsCollector := metrics.NewCollector("climate_loader", prometheus.NewRegistry())

	// The API opens the store read-only; the loader needs to write
	dbConfig := cfg.ToDatabaseConfig()
	dbConfig.ReadOnly = false

	db, err := database.Open(dbConfig, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[LOADER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	datasetRepo := repository.NewDatasetRepository(db, logger, metricsCollector)
	loaderService := services.NewLoaderService(datasetRepo, logger, metricsCollector)

	result, err := loaderService.LoadDataset(ctx, *stationsFile, *measurementsFile, *batchSize)
	if err != nil {
		logger.Error(ctx, "[LOADER_ERROR] Dataset load failed", logging.Fields{}, err)
		db.Close()
		os.Exit(1)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("LOAD COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	for _, r := range []*services.LoadResult{result.Stations, result.Measurements} {
		fmt.Printf("%s\n", r.File)
		fmt.Printf("  Total Records:      %d\n", r.TotalRecords)
		fmt.Printf("  Successful Records: %d\n", r.SuccessfulRecords)
		fmt.Printf("  Failed Records:     %d\n", r.FailedRecords)
		fmt.Printf("  Duration:           %v\n", r.Duration)
	}
	fmt.Printf("Total Duration:       %v\n", result.Duration)
}
