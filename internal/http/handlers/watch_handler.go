// Watch HTTP handler.
//
// This file exposes the live session-list stream:
//   - GET /sessions/watch   (Server-Sent Events)
//
// Each event carries a whole snapshot of the user's newest sessions as
// summaries; the client replaces its local list wholesale on every event.
// Opening the stream closes any stream the same user already had, so a user
// holds at most one live stream server-side.
package handlers

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

// WatchSessions streams snapshots of the user's newest sessions over SSE
// until the client disconnects.
func (h *Handlers) WatchSessions(c *gin.Context) {
	w, err := h.svc.WatchSessions(userID(c), strings.TrimSpace(c.Query("language")))
	if err != nil {
		failFromService(c, err)
		return
	}
	// Close only this handle: if a newer stream replaced it, the manager
	// already closed it and Close is a no-op.
	defer w.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientGone := c.Request.Context().Done()
	c.Stream(func(io.Writer) bool {
		select {
		case snap, open := <-w.Summaries():
			if !open {
				return false
			}
			c.SSEvent("sessions", snap)
			return true
		case <-clientGone:
			return false
		}
	})
}
