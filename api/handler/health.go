package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/trawlhq/trawl/health"
	"github.com/trawlhq/trawl/models"
)

// StatsFunc supplies the browser session's pool stats; nil means the
// process runs without a browser (http engine only).
type StatsFunc func() models.SessionStats

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of pages are
// active.
func Health(stats StatsFunc, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var session models.SessionStats
		if stats != nil {
			session = stats()
		}

		status := "healthy"
		if session.MaxPages > 0 && session.ActivePages > int(float64(session.MaxPages)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Session: session,
			Version: "0.1.0",
		})
	}
}

// SelectorHealth returns a handler for GET /api/v1/health/selectors: the
// latest selector-health report from the background monitor.
func SelectorHealth(monitor *health.Monitor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if monitor == nil {
			c.JSON(http.StatusOK, gin.H{"enabled": false})
			return
		}

		report := monitor.Latest()
		if report == nil {
			c.JSON(http.StatusOK, gin.H{"enabled": true, "report": nil})
			return
		}
		c.JSON(http.StatusOK, gin.H{"enabled": true, "report": report})
	}
}
