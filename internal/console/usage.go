package console

import (
	"context"
	"strings"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/common"
)

// UsageInput records one completed stream. ModelID is the provider's
// external id, possibly carrying a preset suffix.
type UsageInput struct {
	SessionID        string
	ModelID          *string
	ProfileID        *int64
	PromptTokens     int
	CompletionTokens int
}

// InsertUsageLog appends one accounting row. Cost is tokens times the
// catalog's dollars-per-token price; unknown prices contribute zero.
func (r *Repo) InsertUsageLog(ctx context.Context, in UsageInput) (*UsageLog, error) {
	if in.PromptTokens < 0 || in.CompletionTokens < 0 {
		return nil, apierr.BadRequest(apierr.CodeValidationError, "token counts must be non-negative", nil)
	}
	if _, err := r.GetSession(ctx, in.SessionID); err != nil {
		return nil, err
	}

	var pricePrompt, priceCompletion float64
	if in.ModelID != nil {
		model, err := r.GetModelByOpenRouterID(ctx, stripPreset(*in.ModelID))
		if err != nil {
			return nil, err
		}
		if model != nil {
			if model.PricingPrompt != nil {
				pricePrompt = *model.PricingPrompt
			}
			if model.PricingCompletion != nil {
				priceCompletion = *model.PricingCompletion
			}
		}
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	row := UsageLog{
		ID:               id,
		SessionID:        in.SessionID,
		ProfileID:        in.ProfileID,
		ModelID:          in.ModelID,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      in.PromptTokens + in.CompletionTokens,
		CostUSD:          float64(in.PromptTokens)*pricePrompt + float64(in.CompletionTokens)*priceCompletion,
		CreatedAt:        common.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// stripPreset removes a "@preset/<label>" suffix from a model id so the
// pricing lookup hits the catalog row.
func stripPreset(modelID string) string {
	if i := strings.Index(modelID, "@preset/"); i > 0 {
		return modelID[:i]
	}
	return modelID
}

func (r *Repo) ListUsageBySession(ctx context.Context, sessionID string) ([]UsageLog, error) {
	var out []UsageLog
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ModelUsage is the per-model breakdown row.
type ModelUsage struct {
	ModelID          *string `gorm:"column:model_id" json:"model_id"`
	PromptTokens     int     `gorm:"column:prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int     `gorm:"column:completion_tokens" json:"completion_tokens"`
	TotalTokens      int     `gorm:"column:total_tokens" json:"total_tokens"`
	CostUSD          float64 `gorm:"column:cost_usd" json:"cost_usd"`
	Requests         int     `gorm:"column:requests" json:"requests"`
}

func (r *Repo) AggregateUsageByModel(ctx context.Context) ([]ModelUsage, error) {
	var out []ModelUsage
	err := r.db.WithContext(ctx).Raw(`
		SELECT model_id,
			SUM(prompt_tokens) AS prompt_tokens,
			SUM(completion_tokens) AS completion_tokens,
			SUM(total_tokens) AS total_tokens,
			SUM(cost_usd) AS cost_usd,
			COUNT(*) AS requests
		FROM usage_logs
		GROUP BY model_id
		ORDER BY cost_usd DESC, total_tokens DESC`).Scan(&out).Error
	return out, err
}

// TimelineBucket is one period of the usage timeline.
type TimelineBucket struct {
	Period           string  `json:"period"`
	TotalTokens      int     `gorm:"column:total_tokens" json:"total_tokens"`
	PromptTokens     int     `gorm:"column:prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int     `gorm:"column:completion_tokens" json:"completion_tokens"`
	CostUSD          float64 `gorm:"column:cost_usd" json:"cost_usd"`
	Requests         int     `gorm:"column:requests" json:"requests"`
}

// UsageTimeline groups usage rows by day, week or month over an optional
// date range.
func (r *Repo) UsageTimeline(ctx context.Context, granularity, startDate, endDate string) ([]TimelineBucket, error) {
	var format string
	switch granularity {
	case "", "day":
		format = "%Y-%m-%d"
	case "week":
		format = "%Y-W%W"
	case "month":
		format = "%Y-%m"
	default:
		return nil, apierr.BadRequest(apierr.CodeValidationError,
			"granularity must be one of day, week, month", nil)
	}

	sql := `SELECT strftime(?, created_at) AS period,
		SUM(total_tokens) AS total_tokens,
		SUM(prompt_tokens) AS prompt_tokens,
		SUM(completion_tokens) AS completion_tokens,
		SUM(cost_usd) AS cost_usd,
		COUNT(*) AS requests
	FROM usage_logs WHERE 1=1`
	args := []any{format}
	if startDate != "" {
		sql += " AND created_at >= ?"
		args = append(args, startDate)
	}
	if endDate != "" {
		sql += " AND created_at < date(?, '+1 day')"
		args = append(args, endDate)
	}
	sql += " GROUP BY period ORDER BY period ASC"

	var out []TimelineBucket
	err := r.db.WithContext(ctx).Raw(sql, args...).Scan(&out).Error
	return out, err
}

// UsageStats summarizes the whole usage log.
type UsageStats struct {
	TotalTokens      int     `gorm:"column:total_tokens" json:"total_tokens"`
	PromptTokens     int     `gorm:"column:prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int     `gorm:"column:completion_tokens" json:"completion_tokens"`
	TotalCostUSD     float64 `gorm:"column:total_cost_usd" json:"total_cost_usd"`
	Requests         int     `gorm:"column:requests" json:"requests"`
	UniqueModels     int     `gorm:"column:unique_models" json:"unique_models"`
	UniqueSessions   int     `gorm:"column:unique_sessions" json:"unique_sessions"`
	AvgCostUSD       float64 `gorm:"column:avg_cost_usd" json:"avg_cost_usd"`
	FirstAt          *string `gorm:"column:first_at" json:"first_at"`
	LastAt           *string `gorm:"column:last_at" json:"last_at"`
}

func (r *Repo) GetUsageStats(ctx context.Context) (*UsageStats, error) {
	var out UsageStats
	err := r.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(total_tokens), 0) AS total_tokens,
			COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
			COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
			COALESCE(SUM(cost_usd), 0) AS total_cost_usd,
			COUNT(*) AS requests,
			COUNT(DISTINCT model_id) AS unique_models,
			COUNT(DISTINCT session_id) AS unique_sessions,
			COALESCE(AVG(cost_usd), 0) AS avg_cost_usd,
			MIN(created_at) AS first_at,
			MAX(created_at) AS last_at
		FROM usage_logs`).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}
