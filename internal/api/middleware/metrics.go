// metrics.go — Prometheus HTTP метрики.
// Регистрирует метрики: hg_http_requests_total, hg_http_request_duration_seconds.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hg_http_requests_total",
			Help: "Общее количество HTTP-запросов к HalamangGaling API",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hg_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к HalamangGaling API в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			status := strconv.Itoa(rec.status)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

const (
	knowledgePrefix = "/api/indigenous-knowledge/"
	plantsPrefix    = "/api/medicinal-plants/"
)

// normalizePath заменяет идентификаторы и имена общин в пути на шаблоны
// для ограничения кардинальности метрик.
// /api/indigenous-knowledge/6f1c2a9e-... → /api/indigenous-knowledge/{id}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics", "/api/health",
		"/api/auth/register", "/api/auth/login", "/api/auth/profile",
		"/api/users", "/api/indigenous-knowledge",
		"/api/indigenous-knowledge/public",
		"/api/indigenous-knowledge/pending/ipr-review",
		"/api/medicinal-plants", "/api/medicinal-plants/search":
		return path
	}

	if strings.HasPrefix(path, "/api/users/") {
		return "/api/users/{id}"
	}

	if rest, ok := strings.CutPrefix(path, knowledgePrefix); ok && rest != "" {
		if strings.HasPrefix(rest, "community/") {
			return knowledgePrefix + "community/{name}"
		}
		switch _, suffix, _ := strings.Cut(rest, "/"); suffix {
		case "revoke-consent", "access-log", "approve-ipr":
			return knowledgePrefix + "{id}/" + suffix
		case "":
			return knowledgePrefix + "{id}"
		}
	}

	if rest, ok := strings.CutPrefix(path, plantsPrefix); ok && rest != "" {
		switch _, suffix, _ := strings.Cut(rest, "/"); suffix {
		case "review", "versions":
			return plantsPrefix + "{id}/" + suffix
		case "":
			return plantsPrefix + "{id}"
		}
	}

	return "other"
}
