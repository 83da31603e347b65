package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"

	"climate-api/internal/repository"
	"climate-api/internal/services"
	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

// Route templates, also used as metric labels
const (
	RouteIndex         = "/"
	RoutePrecipitation = "/api/v1.0/precipitation"
	RouteStations      = "/api/v1.0/stations"
	RouteTobs          = "/api/v1.0/tobs"
	RouteStart         = "/api/v1.0/{start}"
	RouteStartEnd      = "/api/v1.0/{start}/{end}"
	RouteHealth        = "/health"
)

// ClimateHandler handles the climate API endpoints
type ClimateHandler struct {
	observationService *services.ObservationService
	statsService       *services.StatisticsService
	logger             *logging.StructuredLogger
	metrics            *metrics.Collector
	clock              clockwork.Clock
}

// NewClimateHandler creates a new climate handler
func NewClimateHandler(
	observationService *services.ObservationService,
	statsService *services.StatisticsService,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
	clock clockwork.Clock,
) *ClimateHandler {
	return &ClimateHandler{
		observationService: observationService,
		statsService:       statsService,
		logger:             logger,
		metrics:            metricsCollector,
		clock:              clock,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Precipitation handles GET /api/v1.0/precipitation
func (h *ClimateHandler) Precipitation(w http.ResponseWriter, r *http.Request) {
	values, err := h.observationService.Precipitation(r.Context())
	if err != nil {
		h.handleError(w, r, RoutePrecipitation, "[API_PRECIPITATION_ERROR] Failed to get precipitation", err, nil)
		return
	}

	h.sendJSON(w, values, http.StatusOK)
}

// Stations handles GET /api/v1.0/stations
func (h *ClimateHandler) Stations(w http.ResponseWriter, r *http.Request) {
	names, err := h.observationService.Stations(r.Context())
	if err != nil {
		h.handleError(w, r, RouteStations, "[API_STATIONS_ERROR] Failed to list stations", err, nil)
		return
	}

	h.sendJSON(w, names, http.StatusOK)
}

// TemperatureObservations handles GET /api/v1.0/tobs
func (h *ClimateHandler) TemperatureObservations(w http.ResponseWriter, r *http.Request) {
	values, err := h.observationService.MostActiveStationTemperatures(r.Context())
	if err != nil {
		h.handleError(w, r, RouteTobs, "[API_TOBS_ERROR] Failed to get temperature observations", err, nil)
		return
	}

	h.sendJSON(w, values, http.StatusOK)
}

// StatsFromStart handles GET /api/v1.0/{start}
func (h *ClimateHandler) StatsFromStart(w http.ResponseWriter, r *http.Request) {
	start := mux.Vars(r)["start"]

	stats, err := h.statsService.TemperatureStats(r.Context(), start, nil)
	if err != nil {
		h.handleError(w, r, RouteStart, "[API_STATS_ERROR] Failed to calculate temperature statistics", err, logging.Fields{
			"start": start,
		})
		return
	}

	h.sendJSON(w, stats, http.StatusOK)
}

// StatsInRange handles GET /api/v1.0/{start}/{end}
func (h *ClimateHandler) StatsInRange(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	start, end := vars["start"], vars["end"]

	stats, err := h.statsService.TemperatureStats(r.Context(), start, &end)
	if err != nil {
		h.handleError(w, r, RouteStartEnd, "[API_STATS_ERROR] Failed to calculate temperature statistics", err, logging.Fields{
			"start": start,
			"end":   end,
		})
		return
	}

	h.sendJSON(w, stats, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *ClimateHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := HealthResponse{
		Status:    "healthy",
		Timestamp: h.clock.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if err := h.observationService.HealthCheck(ctx); err != nil {
		h.logger.Error(ctx, "[HEALTH_CHECK_FAILED] Store is unreachable", logging.Fields{}, err)
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	h.sendJSON(w, status, code)
}

// handleError maps service errors to responses. Empty results become 404,
// everything else is logged and reported as 500.
func (h *ClimateHandler) handleError(w http.ResponseWriter, r *http.Request, route, event string, err error, fields logging.Fields) {
	ctx := r.Context()
	if fields == nil {
		fields = logging.Fields{}
	}
	fields["route"] = route

	if errors.Is(err, repository.ErrEmptyResult) {
		h.logger.Warn(ctx, event, fields)
		h.metrics.RecordAPIError("not_found", route)
		h.sendError(w, "no measurements found", http.StatusNotFound)
		return
	}

	h.logger.Error(ctx, event, fields, err)
	h.metrics.RecordAPIError("internal_error", route)
	h.sendError(w, "failed to query climate data", http.StatusInternalServerError)
}

// sendJSON sends a JSON response
func (h *ClimateHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *ClimateHandler) sendError(w http.ResponseWriter, message string, statusCode int) {
	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all climate API routes. The fixed /api/v1.0
// routes are registered before the {start} patterns that would shadow them.
func (h *ClimateHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(RouteIndex, h.Index).Methods("GET")
	router.HandleFunc(RoutePrecipitation, h.Precipitation).Methods("GET")
	router.HandleFunc(RouteStations, h.Stations).Methods("GET")
	router.HandleFunc(RouteTobs, h.TemperatureObservations).Methods("GET")
	router.HandleFunc(RouteStart, h.StatsFromStart).Methods("GET")
	router.HandleFunc(RouteStartEnd, h.StatsInRange).Methods("GET")
	router.HandleFunc(RouteHealth, h.HealthCheck).Methods("GET")
}
