package handlers

import (
	"net/http"
	"runtime"
	"time"

	"poll-decision-backend/database"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemInfo contains basic process facts and dependency status.
type SystemInfo struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Uptime       string    `json:"uptime"`
	StartTime    time.Time `json:"start_time"`
	CurrentTime  time.Time `json:"current_time"`
	GoVersion    string    `json:"go_version"`
	NumGoroutine int       `json:"num_goroutine"`
	NumCPU       int       `json:"num_cpu"`
	DBStatus     string    `json:"db_status"`
}

type HealthHandler struct {
	db      *gorm.DB
	version string
	started time.Time
}

func NewHealthHandler(db *gorm.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, started: time.Now()}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Status reports process details and answers 503 when the database is down.
func (h *HealthHandler) Status(c *gin.Context) {
	info := SystemInfo{
		Status:       "ok",
		Version:      h.version,
		Uptime:       time.Since(h.started).String(),
		StartTime:    h.started,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     "ok",
	}
	code := http.StatusOK
	if err := database.Ping(c.Request.Context(), h.db, 2*time.Second); err != nil {
		info.Status, info.DBStatus = "degraded", "error"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, info)
}
