package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/idealistaplus/backend/models"
)

// SessionReporter exposes the browser session state for the health probe.
type SessionReporter interface {
	Stats() models.SessionStats
}

// Health returns the handler for GET /api/health.
//
// Reports "busy" when every acquisition slot is occupied, so a caller can
// back off before queueing behind the shared browser.
func Health(session SessionReporter, maxConcurrent int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := session.Stats()
		stats.MaxConcurrent = maxConcurrent

		status := "healthy"
		if maxConcurrent > 0 && stats.ActivePages >= maxConcurrent {
			status = "busy"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Session: stats,
			Version: "0.1.0",
		})
	}
}
