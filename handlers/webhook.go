package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cronwatch/models"
)

// PingHandler records a single heartbeat for jobs that do not report start and end.
// Suitable as the tail of a crontab line: `backup.sh && curl -X POST .../ping/backup`.
func (a *API) PingHandler(c *gin.Context) {
	id := c.Param("id")
	run, err := a.Monitor.Ping(c.Request.Context(), id, clientInfo(c, models.ClientInfo{}))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Ping recorded", "job_id": id, "run_id": run.ID})
}
