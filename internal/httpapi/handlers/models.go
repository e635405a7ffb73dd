package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/ai"
	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/console"
)

// SyncModels refreshes the local catalog from the provider. Rerunning it is
// safe: existing rows keep their surrogate ids.
func (h *Handler) SyncModels(c *gin.Context) {
	catalog, err := h.AI.ListModels(c.Request.Context())
	if err != nil {
		fail(c, upstreamErr(err))
		return
	}

	rows := make([]console.CatalogRow, 0, len(catalog))
	for _, m := range catalog {
		rows = append(rows, console.CatalogRow{
			OpenRouterID:      m.ID,
			Name:              m.Name,
			ContextLength:     m.ContextLength,
			PricingPrompt:     m.PricingPrompt,
			PricingCompletion: m.PricingCompletion,
			IsReasoning:       m.IsReasoning,
		})
	}
	n, err := h.Repo.UpsertModels(c.Request.Context(), rows)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": n})
}

func (h *Handler) ListModels(c *gin.Context) {
	var f console.ModelFilter
	if v := c.Query("reasoning"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(c, apierr.BadRequest(apierr.CodeValidationError, "reasoning must be a boolean", nil))
			return
		}
		f.Reasoning = &b
	}
	if v := c.Query("min_context"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			fail(c, apierr.BadRequest(apierr.CodeValidationError, "min_context must be an integer", nil))
			return
		}
		f.MinContext = &n
	}
	if v := c.Query("max_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			fail(c, apierr.BadRequest(apierr.CodeValidationError, "max_price must be a number", nil))
			return
		}
		f.MaxPrice = &p
	}

	models, err := h.Repo.ListModels(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models, "total": len(models)})
}

// upstreamErr maps a provider client failure to its envelope form.
func upstreamErr(err error) error {
	var statusErr *ai.StatusError
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		return apierr.MissingAPIKey()
	case errors.As(err, &statusErr):
		return apierr.OpenRouter(statusErr.Status, statusErr.Body)
	default:
		return apierr.OpenRouter(http.StatusBadGateway, err.Error())
	}
}
