package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/console"
	"github.com/orconsole/server/internal/httpapi/middleware"
	"github.com/orconsole/server/internal/sse"
)

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// Stream relays one completion over the session history as SSE. The
// response is always 200: EventSource cannot read a failed response body,
// so preflight failures become a single error frame instead.
func (h *Handler) Stream(c *gin.Context) {
	requestID := middleware.GetRequestID(c)
	sseHeaders(c)
	w := sse.NewWriter(c.Writer)

	req, apiErr := streamQuery(c)
	if apiErr == nil {
		var plan *console.StreamPlan
		plan, apiErr = h.Pipeline.Preflight(c.Request.Context(), *req)
		if apiErr == nil {
			h.Pipeline.Run(c.Request.Context(), plan, w, requestID)
			return
		}
	}
	_ = w.Send(sse.EventError, apiErr.StreamEnvelope(requestID))
}

// streamQuery parses and validates the stream query parameters.
func streamQuery(c *gin.Context) (*console.StreamRequest, *apierr.Error) {
	sessionID := c.Query("session_id")
	modelID := c.Query("model_id")
	if sessionID == "" || modelID == "" {
		return nil, apierr.BadRequest(apierr.CodeValidationError, "session_id and model_id are required", nil)
	}

	req := console.StreamRequest{SessionID: sessionID, ModelID: modelID}
	if v := c.Query("profile_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apierr.BadRequest(apierr.CodeValidationError, "profile_id must be an integer", nil)
		}
		req.ProfileID = &id
	}
	if v := c.Query("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, apierr.BadRequest(apierr.CodeValidationError, "temperature must be a number", nil)
		}
		req.Temperature = &t
	}
	if v := c.Query("max_tokens"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, apierr.BadRequest(apierr.CodeValidationError, "max_tokens must be an integer", nil)
		}
		req.MaxTokens = &n
	}
	return &req, nil
}
