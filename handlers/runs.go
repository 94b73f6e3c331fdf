package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"cronwatch/db"
	"cronwatch/models"
)

type startJobRequest struct {
	ClientInfo models.ClientInfo `json:"client_info"`
}

// StartJob opens a run. A start outside the scheduled window still succeeds
// and carries "alert" in the response.
func (a *API) StartJob(c *gin.Context) {
	var req startJobRequest
	// The body is optional; io.EOF means none was sent.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid JSON"})
		return
	}

	id := jobID(c)
	res, err := a.Monitor.StartRun(c.Request.Context(), id, clientInfo(c, req.ClientInfo))
	if err != nil {
		abortWithError(c, err)
		return
	}

	body := gin.H{
		"message": "Job started",
		"job_id":  id,
		"run_id":  res.Run.ID,
		"run":     res.Run,
	}
	if res.Alert != "" {
		body["message"] = "Job started with schedule violation"
		body["alert"] = res.Alert
	}
	c.JSON(http.StatusOK, body)
}

func (a *API) EndJob(c *gin.Context) {
	id := jobID(c)
	run, err := a.Monitor.EndRun(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Job ended",
		"job_id":   id,
		"run_id":   run.ID,
		"duration": run.Duration(),
	})
}

func (a *API) ListRuns(c *gin.Context) {
	q := db.RunQuery{JobID: c.Query("job_id")}
	var err error
	if q.Page, err = intQuery(c, "page"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if q.PerPage, err = intQuery(c, "per_page"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if s := c.Query("snapshot"); s != "" {
		if q.Snapshot, err = strconv.ParseInt(s, 10, 64); err != nil || q.Snapshot < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "snapshot must be a non-negative integer"})
			return
		}
	}

	page, err := a.Monitor.ListRuns(c.Request.Context(), q)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func intQuery(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

// clientInfo fills what the caller did not report from the request itself.
func clientInfo(c *gin.Context, reported models.ClientInfo) models.ClientInfo {
	info := reported
	if info.IPAddress == "" {
		info.IPAddress = c.ClientIP()
		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			info.IPAddress = strings.TrimSpace(strings.Split(fwd, ",")[0])
		}
	}
	if info.UserAgent == "" {
		info.UserAgent = c.Request.UserAgent()
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}
	if info.OSInfo == "" {
		info.OSInfo = runtime.GOOS + "/" + runtime.GOARCH
	}
	return info
}
