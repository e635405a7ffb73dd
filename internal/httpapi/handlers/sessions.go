package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/console"
)

type sessionReq struct {
	SessionType string  `json:"session_type"`
	Title       *string `json:"title"`
	ProfileID   *int64  `json:"profile_id"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req sessionReq
	// An empty body means a default chat session.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.BadRequest(apierr.CodeValidationError, "invalid session payload: "+err.Error(), nil))
			return
		}
	}
	s, err := h.Repo.CreateSession(c.Request.Context(), console.SessionInput{
		SessionType: req.SessionType,
		Title:       req.Title,
		ProfileID:   req.ProfileID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *Handler) ListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	sessions, err := h.Repo.ListSessions(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "total": len(sessions)})
}

func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.Repo.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// UpdateSession patches only the fields present in the body, so sending
// {"title": null} clears the title while omitting it leaves it alone.
func (h *Handler) UpdateSession(c *gin.Context) {
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "invalid session payload: "+err.Error(), nil))
		return
	}

	var upd console.SessionUpdate
	if v, ok := raw["title"]; ok {
		var title *string
		if err := json.Unmarshal(v, &title); err != nil {
			fail(c, apierr.BadRequest(apierr.CodeValidationError, "title must be a string or null", nil))
			return
		}
		upd.Title = &title
	}
	if v, ok := raw["profile_id"]; ok {
		var profileID *int64
		if err := json.Unmarshal(v, &profileID); err != nil {
			fail(c, apierr.BadRequest(apierr.CodeValidationError, "profile_id must be an integer or null", nil))
			return
		}
		upd.ProfileID = &profileID
	}

	s, err := h.Repo.UpdateSession(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.Repo.DeleteSession(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (h *Handler) ListSessionMessages(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Repo.GetSession(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	msgs, err := h.Repo.ListMessages(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "total": len(msgs)})
}
