package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (a *API) ListAlerts(c *gin.Context) {
	include := false
	if s := c.Query("include_acknowledged"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"detail": "include_acknowledged must be a boolean"})
			return
		}
		include = v
	}

	alerts, err := a.Monitor.ListAlerts(c.Request.Context(), include, c.Query("job_id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (a *API) AcknowledgeAlert(c *gin.Context) {
	alert, err := a.Monitor.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
