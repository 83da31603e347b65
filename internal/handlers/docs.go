package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"climate-api/pkg/logging"
)

// Documentation routes
const (
	RouteDocs        = "/docs"
	RouteOpenAPISpec = "/docs/openapi.json"
)

// DocsHandler serves the Swagger UI and the OpenAPI document
type DocsHandler struct {
	logger *logging.StructuredLogger
}

// NewDocsHandler creates a new documentation handler
func NewDocsHandler(logger *logging.StructuredLogger) *DocsHandler {
	return &DocsHandler{logger: logger}
}

func dateValueArraySchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"$ref": "#/components/schemas/DateValue",
					},
				},
			},
		},
	}
}

func errorResponse(description string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/Error"},
			},
		},
	}
}

func statsResponse() map[string]interface{} {
	return map[string]interface{}{
		"description": "Temperature statistics; Min, Max and Mean are null when no observations match",
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/TemperatureStats"},
			},
		},
	}
}

func datePathParam(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "path",
		"description": description,
		"required":    true,
		"schema":      map[string]string{"type": "string", "example": "2017-01-01"},
	}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the Climate API
func (h *DocsHandler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Climate API",
			"description": "Read-only precipitation, station and temperature statistics over the Hawaii climate dataset",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			RoutePrecipitation: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Precipitation for the last 12 months",
					"description": "Every (date, prcp) pair from 365 days before the latest measurement onward. Duplicate dates from different stations are all returned.",
					"responses": map[string]interface{}{
						"200": dateValueArraySchema("Ordered list of single-key objects"),
						"404": errorResponse("The measurement table is empty"),
						"500": errorResponse("Store failure"),
					},
				},
			},
			RouteStations: map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "List station names",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Station names in store order; a missing name is null",
							"content": map[string]interface{}{
								"application/json": map[string]interface{}{
									"schema": map[string]interface{}{
										"type":  "array",
										"items": map[string]interface{}{"type": "string", "nullable": true},
									},
								},
							},
						},
						"500": errorResponse("Store failure"),
					},
				},
			},
			RouteTobs: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Temperature observations of the most active station",
					"description": "The station with the most temperature readings (ties go to the lowest station id), over the last 12 months of data.",
					"responses": map[string]interface{}{
						"200": dateValueArraySchema("Ordered list of single-key objects"),
						"404": errorResponse("The measurement table is empty"),
						"500": errorResponse("Store failure"),
					},
				},
			},
			RouteStart: map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Temperature statistics from a start date",
					"parameters": []map[string]interface{}{datePathParam("start", "Inclusive start date (YYYY-MM-DD)")},
					"responses": map[string]interface{}{
						"200": statsResponse(),
						"500": errorResponse("Store failure"),
					},
				},
			},
			RouteStartEnd: map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Temperature statistics between two dates",
					"parameters": []map[string]interface{}{
						datePathParam("start", "Inclusive start date (YYYY-MM-DD)"),
						datePathParam("end", "Inclusive end date (YYYY-MM-DD)"),
					},
					"responses": map[string]interface{}{
						"200": statsResponse(),
						"500": errorResponse("Store failure"),
					},
				},
			},
			RouteHealth: map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "Service and store are healthy"},
						"503": map[string]interface{}{"description": "Store is unreachable"},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"DateValue": map[string]interface{}{
					"type":        "object",
					"description": "A single date key mapped to a reading or null",
					"additionalProperties": map[string]interface{}{
						"type":     "number",
						"nullable": true,
					},
					"example": map[string]float64{"2016-08-23": 0.7},
				},
				"TemperatureStats": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"Count": map[string]string{"type": "integer"},
						"Min":   map[string]interface{}{"type": "number", "nullable": true},
						"Max":   map[string]interface{}{"type": "number", "nullable": true},
						"Mean":  map[string]interface{}{"type": "number", "nullable": true},
					},
				},
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(spec); err != nil {
		h.logger.Error(r.Context(), "[API_RENDER_ERROR] Failed to write OpenAPI document", logging.Fields{
			"route": RouteOpenAPISpec,
		}, err)
	}
}

// RegisterRoutes registers the Swagger UI and the OpenAPI document
func (h *DocsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(RouteDocs, h.SwaggerUI).Methods("GET")
	router.HandleFunc(RouteOpenAPISpec, h.OpenAPISpec).Methods("GET")
}
