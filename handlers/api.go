package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cronwatch/config"
	"cronwatch/middleware"
	"cronwatch/services"
)

type API struct {
	Monitor  *services.Monitor
	Hub      *services.Broadcaster
	Features config.Features
	// JWTSecret verifies bearer tokens when Features.AuthEnabled is set.
	JWTSecret []byte
}

// Router builds the gin engine with every route mounted.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	r.GET("/health", a.Health)
	if a.Features.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/", middleware.AuthRequired(a.Features.AuthEnabled, a.JWTSecret))
	{
		api.GET("/jobs", a.ListJobs)
		api.POST("/jobs", a.ConfigureJob)
		api.POST("/configure_job", a.ConfigureJob)
		api.GET("/jobs/:id", a.GetJob)
		api.GET("/job_status/:id", a.GetJob)
		api.DELETE("/jobs/:id", a.DeleteJob)
		api.POST("/jobs/:id/pause", a.PauseJob)
		api.POST("/jobs/:id/resume", a.ResumeJob)

		api.POST("/jobs/:id/start", a.StartJob)
		api.POST("/jobs/:id/end", a.EndJob)
		api.POST("/start_job", a.StartJob)
		api.POST("/end_job", a.EndJob)
		if a.Features.PingEnabled {
			api.POST("/ping/:id", a.PingHandler)
		}
		api.GET("/job_runs", a.ListRuns)

		api.GET("/job_alerts", a.ListAlerts)
		api.POST("/acknowledge_alert/:id", a.AcknowledgeAlert)

		api.GET("/events", a.StreamEvents)
		api.GET("/stats/overview", a.GetStatsOverview)
	}
	return r
}

// jobID reads the job from the path, or from ?job_id= on the legacy routes.
func jobID(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return c.Query("job_id")
}

// abortWithError maps service errors onto status codes with a {"detail"} body.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	detail := "Internal server error"
	switch {
	case errors.Is(err, services.ErrInvalidConfig), errors.Is(err, services.ErrInvalidSchedule):
		status, detail = http.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrNotFound):
		status, detail = http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrPaused), errors.Is(err, services.ErrNoOpenRun):
		status, detail = http.StatusConflict, err.Error()
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
