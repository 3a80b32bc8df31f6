package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"poll-decision-backend/apperrors"
	"poll-decision-backend/metrics"

	"github.com/gin-gonic/gin"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestStatusForErrorKinds(t *testing.T) {
	cases := map[error]int{
		apperrors.Invalid("f", apperrors.CodeClosesInPast): http.StatusUnprocessableEntity,
		apperrors.Forbidden(1, "close poll"):               http.StatusForbidden,
		apperrors.NotFound("poll", 3):                      http.StatusNotFound,
		apperrors.Inconsistent("two latest stances"):       http.StatusConflict,
		errors.New("disk on fire"):                         http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

type denyAfter struct {
	left int
	err  error
}

func (d *denyAfter) Allow(context.Context, string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.left--
	return d.left >= 0, nil
}

func limitedRouter(l Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(l, zap.NewNop()))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, actor string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitRejectsWhenExhausted(t *testing.T) {
	r := limitedRouter(&denyAfter{left: 2})
	assert.Equal(t, http.StatusOK, get(r, "7"))
	assert.Equal(t, http.StatusOK, get(r, "7"))
	assert.Equal(t, http.StatusTooManyRequests, get(r, "7"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := limitedRouter(&denyAfter{err: errors.New("redis down")})
	assert.Equal(t, http.StatusOK, get(r, "7"))
}

func TestLocalLimiterIsPerClient(t *testing.T) {
	r := limitedRouter(NewLocalLimiter(0.001, 1))
	assert.Equal(t, http.StatusOK, get(r, "1"))
	assert.Equal(t, http.StatusTooManyRequests, get(r, "1"))
	assert.Equal(t, http.StatusOK, get(r, "2"))
	assert.Equal(t, http.StatusOK, get(r, ""))
}

func TestRequestIDAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.NewNop()
	r := gin.New()
	r.Use(RequestID(), Metrics(m))
	r.GET("/polls/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/polls/5", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, 1, promtest.CollectAndCount(m.HTTPRequestDuration))

	req = httptest.NewRequest(http.MethodGet, "/polls/5", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}
