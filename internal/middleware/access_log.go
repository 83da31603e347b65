package middleware

import (
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"

	"climate-api/pkg/logging"
)

var skippedLogPaths = []string{"/health", "/metrics", "/docs"}

// AccessLog logs one entry per request with method, path, status and latency.
// Health, metrics and docs requests are not logged.
func AccessLog(logger *logging.StructuredLogger, clock clockwork.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range skippedLogPaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := clock.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			fields := logging.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       routeTemplate(r),
				"status":      sr.status,
				"duration_ms": clock.Since(start).Milliseconds(),
			}

			if sr.status >= http.StatusInternalServerError {
				logger.Warn(r.Context(), "[HTTP_REQUEST_FAILED] Request failed", fields)
				return
			}
			logger.Info(r.Context(), "[HTTP_REQUEST] Request completed", fields)
		})
	}
}
