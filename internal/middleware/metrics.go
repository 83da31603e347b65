package middleware

import (
	"net/http"
	"strconv"

	"climate-api/pkg/metrics"
)

// Metrics records request count and duration labelled by route template
func Metrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)
			timer := collector.NewTimer(collector.APIRequestDuration.WithLabelValues(route))

			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sr, r)

			timer.ObserveDuration()
			collector.RecordAPIRequest(route, r.Method, strconv.Itoa(sr.status))
		})
	}
}
