package handler

import (
	"context"
	"net/http"
	"time"

	"currencyapi/internal/model"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler liveness and a detailed status for monitoring
type HealthHandler struct {
	check        func(ctx context.Context) error
	stats        func() map[string]interface{}
	cacheBackend string
	jobs         JobRunner
}

// NewHealthHandler a nil db checks the default connection; jobs may be
// nil when the scheduler is off
func NewHealthHandler(db func() *gorm.DB, cacheBackend string, jobs JobRunner) *HealthHandler {
	h := &HealthHandler{
		check:        model.CheckDBHealth,
		stats:        model.GetDBStats,
		cacheBackend: cacheBackend,
		jobs:         jobs,
	}
	if db != nil {
		h.check = func(ctx context.Context) error { return model.PingDB(ctx, db()) }
		h.stats = func() map[string]interface{} { return model.DBStats(db()) }
	}
	return h
}

// Health 200 when the database answers, 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.check(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "database connection failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Detail database pool, cache backend and last job runs
func (h *HealthHandler) Detail(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	health := gin.H{
		"status":    "ok",
		"timestamp": model.Now().Format(time.RFC3339),
	}

	dbStatus := "ok"
	statusCode := http.StatusOK
	if err := h.check(ctx); err != nil {
		dbStatus = "error: " + err.Error()
		health["status"] = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}
	health["database"] = gin.H{
		"status": dbStatus,
		"stats":  h.stats(),
	}
	health["cache"] = gin.H{"backend": h.cacheBackend}

	if h.jobs != nil {
		jobs := h.jobs.Status()
		for _, st := range jobs {
			if st.Status == "failed" && health["status"] == "ok" {
				health["status"] = "degraded"
			}
		}
		health["jobs"] = jobs
	}

	c.JSON(statusCode, health)
}
