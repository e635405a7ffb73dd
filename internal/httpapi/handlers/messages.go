package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/console"
)

type messageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Role      string `json:"role" binding:"required"`
	Content   string `json:"content" binding:"required"`
}

func (h *Handler) CreateMessage(c *gin.Context) {
	var req messageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "invalid message payload: "+err.Error(), nil))
		return
	}
	m, err := h.Repo.AddMessage(c.Request.Context(), req.SessionID, req.Role, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMessage(c *gin.Context) {
	m, err := h.Repo.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// SearchMessages runs a ranked full-text query. The query parameter
// accepts FTS5 syntax: phrases, -exclusion, prefix* and boolean operators.
// q is kept as a shorthand alias.
func (h *Handler) SearchMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	query := c.Query("query")
	if query == "" {
		query = c.Query("q")
	}

	results, err := h.Repo.SearchMessages(c.Request.Context(), console.SearchParams{
		Query:       query,
		SessionType: c.Query("session_type"),
		SessionID:   c.Query("session_id"),
		ModelID:     c.Query("model_id"),
		StartDate:   c.Query("start_date"),
		EndDate:     c.Query("end_date"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"total":   len(results),
		"query":   query,
	})
}
