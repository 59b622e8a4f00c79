package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the preference backend.
// All methods are safe to call on a nil *Metrics, which records nothing.
//
// Metrics:
//   - foodietrack_http_requests_total{method,route,status}
//   - foodietrack_http_request_duration_seconds{method,route}
//   - foodietrack_preferences_written_total{outcome} - "created" or "merged"
//   - foodietrack_upstream_calls_total{upstream,result}
//   - foodietrack_upstream_breaker_state{upstream} - 0 closed, 1 open, 2 half-open
//   - foodietrack_recommendation_cache_total{result} - "hit" or "miss"
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	PreferencesWritten *prometheus.CounterVec
	UpstreamCalls      *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	RecommendationHits *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodietrack_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "foodietrack_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PreferencesWritten: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodietrack_preferences_written_total",
				Help: "Preference upserts by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodietrack_upstream_calls_total",
				Help: "Calls to external APIs by result",
			},
			[]string{"upstream", "result"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "foodietrack_upstream_breaker_state",
				Help: "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
			},
			[]string{"upstream"},
		),
		RecommendationHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foodietrack_recommendation_cache_total",
				Help: "Recommendation cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// PreferenceWritten counts one upsert; created distinguishes inserts from merges.
func (m *Metrics) PreferenceWritten(created bool) {
	if m == nil {
		return
	}
	outcome := "merged"
	if created {
		outcome = "created"
	}
	m.PreferencesWritten.WithLabelValues(outcome).Inc()
}

// UpstreamCall counts one call to an external API.
func (m *Metrics) UpstreamCall(upstream string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UpstreamCalls.WithLabelValues(upstream, result).Inc()
}

// SetBreakerState records a breaker transition. state follows circuitbreaker.State.
func (m *Metrics) SetBreakerState(upstream string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(upstream).Set(float64(state))
}

// RecommendationCache counts one cache lookup.
func (m *Metrics) RecommendationCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.RecommendationHits.WithLabelValues(result).Inc()
}
