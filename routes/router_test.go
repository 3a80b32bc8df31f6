package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"poll-decision-backend/config"
	"poll-decision-backend/handlers"
	"poll-decision-backend/metrics"
	"poll-decision-backend/service"
	"poll-decision-backend/templates"
	"poll-decision-backend/testutil"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, limiter handlers.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	polls := service.New(service.Deps{DB: db, Templates: templates.Default(), Metrics: m}, service.DefaultOptions())
	return SetupRouter(Deps{
		Config:   config.HTTP{AllowOrigins: []string{"http://localhost:3000"}},
		DB:       db,
		Polls:    polls,
		Limiter:  limiter,
		Metrics:  m,
		Gatherer: reg,
		Log:      zap.NewNop(),
		Version:  "test",
	})
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, handlers.NewLocalLimiter(100, 100))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(handlers.RequestIDHeader))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "polls_http_request_duration_seconds"))
}

func TestRouterRateLimitsPollRoutesOnly(t *testing.T) {
	r := newTestRouter(t, handlers.NewLocalLimiter(0.001, 1))

	req := func(path string) int {
		rq := httptest.NewRequest(http.MethodGet, path, nil)
		rq.Header.Set(handlers.ActorHeader, "9")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, rq)
		return w.Code
	}
	assert.Equal(t, http.StatusNotFound, req("/api/polls/1"))
	assert.Equal(t, http.StatusTooManyRequests, req("/api/polls/1"))
	assert.Equal(t, http.StatusOK, req("/api/health"))
}
