package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-outpass-api/internal/service"
	appErrors "github.com/noah-isme/campus-outpass-api/pkg/errors"
	"github.com/noah-isme/campus-outpass-api/pkg/response"
)

// StreamHandler serves the live outing feed over server-sent events.
type StreamHandler struct {
	hub *service.StreamService
}

// NewStreamHandler constructs the handler.
func NewStreamHandler(hub *service.StreamService) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// Events godoc
// @Summary Live outing transition feed (SSE)
// @Tags Outings
// @Produce text/event-stream
// @Success 200
// @Router /outings/stream [get]
func (h *StreamHandler) Events(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "live feed not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	events, stop := h.hub.Register(*claims)
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(event.Event, event)
			return true
		}
	})
}
