package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 25 * time.Second

// StreamEvents pushes state-change events as Server-Sent Events. Events carry
// no state; clients re-query on receipt.
func (a *API) StreamEvents(c *gin.Context) {
	if a.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "push channel disabled"})
		return
	}
	events, unsubscribe := a.Hub.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	// Tell the client to load its initial state.
	c.SSEvent("refresh", gin.H{"type": "refresh", "reason": "connected"})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-keepAlive.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		}
	})
}
