package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"climate-api/pkg/logging"
	"climate-api/pkg/metrics"
)

var unlimitedPaths = []string{"/health", "/metrics"}

// RateLimiter rejects requests above a process-wide token bucket rate.
// Health and metrics scrapes are never limited.
type RateLimiter struct {
	limiter *rate.Limiter
	clock   clockwork.Clock
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int, clock clockwork.Clock, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(limit, burst),
		clock:   clock,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Middleware returns the HTTP middleware enforcing the limit
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range unlimitedPaths {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		if l.limiter.AllowN(l.clock.Now(), 1) {
			next.ServeHTTP(w, r)
			return
		}

		l.metrics.APIRateLimitedTotal.Inc()
		l.logger.Warn(r.Context(), "[HTTP_RATE_LIMITED] Request rejected by rate limiter", logging.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		})

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":   http.StatusText(http.StatusTooManyRequests),
			"message": "rate limit exceeded",
			"code":    http.StatusTooManyRequests,
		})
	})
}
