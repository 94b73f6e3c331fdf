package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cronwatch/services"
)

const defaultToleranceMinutes = 10

type configureJobRequest struct {
	JobID             string `json:"job_id"`
	Schedule          string `json:"schedule"`
	Timezone          string `json:"timezone"`
	ToleranceMinutes  *int   `json:"tolerance_minutes"`
	MaxRuntimeMinutes *int   `json:"max_runtime_minutes"`
	Paused            *bool  `json:"paused"`
}

// ConfigureJob creates the job or replaces its configuration.
func (a *API) ConfigureJob(c *gin.Context) {
	var req configureJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON"})
		return
	}

	tolerance := defaultToleranceMinutes
	if req.ToleranceMinutes != nil {
		tolerance = *req.ToleranceMinutes
	}
	job, err := a.Monitor.Upsert(c.Request.Context(), services.JobInput{
		JobID:             req.JobID,
		Schedule:          req.Schedule,
		Timezone:          req.Timezone,
		ToleranceMinutes:  tolerance,
		MaxRuntimeMinutes: req.MaxRuntimeMinutes,
		Paused:            req.Paused,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Job configured",
		"job_id":  job.JobID,
		"job":     job,
	})
}

func (a *API) ListJobs(c *gin.Context) {
	jobs, err := a.Monitor.List(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (a *API) GetJob(c *gin.Context) {
	job, err := a.Monitor.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a *API) DeleteJob(c *gin.Context) {
	id := c.Param("id")
	if err := a.Monitor.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job deleted", "job_id": id})
}

func (a *API) PauseJob(c *gin.Context) {
	job, err := a.Monitor.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job paused", "job_id": job.JobID, "paused": job.Paused})
}

func (a *API) ResumeJob(c *gin.Context) {
	job, err := a.Monitor.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Job resumed", "job_id": job.JobID, "paused": job.Paused})
}
