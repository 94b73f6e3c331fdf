package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Read-only overview stats
func (a *API) GetStatsOverview(c *gin.Context) {
	stats, err := a.Monitor.Stats(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	observers := 0
	if a.Hub != nil {
		observers = a.Hub.Observers()
	}
	c.JSON(http.StatusOK, gin.H{
		"total_jobs":           stats.TotalJobs,
		"paused_jobs":          stats.PausedJobs,
		"running_jobs":         stats.RunningJobs,
		"total_runs":           stats.TotalRuns,
		"total_alerts":         stats.TotalAlerts,
		"open_alerts":          stats.OpenAlerts,
		"avg_duration_seconds": stats.AvgDurationSeconds,
		"observers":            observers,
	})
}

func (a *API) Health(c *gin.Context) {
	if err := a.Monitor.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
