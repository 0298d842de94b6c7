// metrics.go - Prometheus HTTP метрики модуля документов:
// dm_http_requests_total, dm_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_http_requests_total",
			Help: "Общее количество HTTP-запросов к модулю документов",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dm_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к модулю документов в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware собирает количество и длительность запросов по endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// routeTemplates - шаблоны путей API. Сегмент "*" - идентификатор.
var routeTemplates = [][]string{
	{"api", "v1", "bookings", "*", "service-forms"},
	{"api", "v1", "bookings", "*", "documents"},
	{"api", "v1", "service-forms", "*", "regenerate"},
	{"api", "v1", "service-forms", "*", "working-area-agreement"},
}

// normalizePath заменяет идентификаторы в пути на {id}.
// /api/v1/bookings/a1b2.../documents → /api/v1/bookings/{id}/documents
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics":
		return path
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for _, tmpl := range routeTemplates {
		if matchTemplate(segments, tmpl) {
			out := make([]string, len(tmpl))
			for i, s := range tmpl {
				if s == "*" {
					s = "{id}"
				}
				out[i] = s
			}
			return "/" + strings.Join(out, "/")
		}
	}
	// Неизвестные пути сводятся к одной метке.
	return "other"
}

func matchTemplate(segments, tmpl []string) bool {
	if len(segments) != len(tmpl) {
		return false
	}
	for i, s := range tmpl {
		if s != "*" && s != segments[i] {
			return false
		}
		if s == "*" && segments[i] == "" {
			return false
		}
	}
	return true
}
