package handlers

import (
	"net/http"
	"strconv"
	"time"

	"poll-decision-backend/metrics"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ActorHeader carries the authenticated user id, set by the gateway.
	ActorHeader     = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	actorKey     = "actor_id"
	requestIDKey = "request_id"
)

// RequestID reuses the caller's request id or issues a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequireActor rejects requests without a numeric X-User-ID.
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.GetHeader(ActorHeader), 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing or invalid " + ActorHeader})
			return
		}
		c.Set(actorKey, uint(id))
		c.Next()
	}
}

func actorID(c *gin.Context) uint {
	return c.GetUint(actorKey)
}

// Metrics records request latency by route template.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
