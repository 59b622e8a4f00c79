package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_RecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/preferences/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/preferences/7", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/preferences/:id", "204")))
}

func TestCounters(t *testing.T) {
	m := New()
	m.PreferenceWritten(true)
	m.PreferenceWritten(false)
	m.PreferenceWritten(false)
	m.UpstreamCall("gemini", errors.New("boom"))
	m.RecommendationCache(true)
	m.SetBreakerState("elevenlabs", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PreferencesWritten.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PreferencesWritten.WithLabelValues("merged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("gemini", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecommendationHits.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("elevenlabs")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PreferenceWritten(true)
		m.UpstreamCall("x", nil)
		m.RecommendationCache(false)
		m.SetBreakerState("x", 0)
	})
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.PreferenceWritten(true)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `foodietrack_preferences_written_total{outcome="created"} 1`)
}
