package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/console"
)

type usageReq struct {
	SessionID        string  `json:"session_id" binding:"required"`
	ModelID          *string `json:"model_id"`
	ProfileID        *int64  `json:"profile_id"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
}

func (h *Handler) CreateUsageLog(c *gin.Context) {
	var req usageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "invalid usage payload: "+err.Error(), nil))
		return
	}
	row, err := h.Repo.InsertUsageLog(c.Request.Context(), console.UsageInput{
		SessionID:        req.SessionID,
		ModelID:          req.ModelID,
		ProfileID:        req.ProfileID,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (h *Handler) ListSessionUsage(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Repo.GetSession(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	rows, err := h.Repo.ListUsageBySession(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": rows, "total": len(rows)})
}

func (h *Handler) UsageByModel(c *gin.Context) {
	rows, err := h.Repo.AggregateUsageByModel(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": rows, "total": len(rows)})
}

func (h *Handler) UsageTimeline(c *gin.Context) {
	buckets, err := h.Repo.UsageTimeline(c.Request.Context(),
		c.Query("granularity"), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		fail(c, err)
		return
	}
	granularity := c.Query("granularity")
	if granularity == "" {
		granularity = "day"
	}
	c.JSON(http.StatusOK, gin.H{"timeline": buckets, "granularity": granularity})
}

func (h *Handler) UsageStats(c *gin.Context) {
	stats, err := h.Repo.GetUsageStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
