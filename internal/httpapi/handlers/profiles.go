package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/console"
)

type profileReq struct {
	Name             string   `json:"name" binding:"required"`
	SystemPrompt     *string  `json:"system_prompt"`
	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	OpenRouterPreset *string  `json:"openrouter_preset"`
}

func (r profileReq) input() console.ProfileInput {
	return console.ProfileInput{
		Name:             r.Name,
		SystemPrompt:     r.SystemPrompt,
		Temperature:      r.Temperature,
		MaxTokens:        r.MaxTokens,
		OpenRouterPreset: r.OpenRouterPreset,
	}
}

func profileID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "profile id must be an integer", nil))
		return 0, false
	}
	return id, true
}

func (h *Handler) CreateProfile(c *gin.Context) {
	var req profileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "invalid profile payload: "+err.Error(), nil))
		return
	}
	p, err := h.Repo.CreateProfile(c.Request.Context(), req.input())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListProfiles(c *gin.Context) {
	profiles, err := h.Repo.ListProfiles(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles, "total": len(profiles)})
}

func (h *Handler) GetProfile(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	p, err := h.Repo.GetProfile(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	var req profileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "invalid profile payload: "+err.Error(), nil))
		return
	}
	p, err := h.Repo.UpdateProfile(c.Request.Context(), id, req.input())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProfile(c *gin.Context) {
	id, ok := profileID(c)
	if !ok {
		return
	}
	if err := h.Repo.DeleteProfile(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
