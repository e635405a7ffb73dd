// Package console implements the gateway's domain: entities, the
// repository over the embedded store, message search, usage accounting and
// the streaming pipeline.
package console

import "slices"

// Model is one cached row of the provider catalog. Prices are dollars per
// token; a nil price means the catalog did not report one.
type Model struct {
	ID                string   `gorm:"primaryKey" json:"id"`
	OpenRouterID      string   `gorm:"column:openrouter_id;uniqueIndex;not null" json:"openrouter_id"`
	Name              string   `gorm:"not null" json:"name"`
	ContextLength     *int     `json:"context_length"`
	PricingPrompt     *float64 `json:"pricing_prompt"`
	PricingCompletion *float64 `json:"pricing_completion"`
	IsReasoning       bool     `gorm:"column:is_reasoning" json:"is_reasoning"`
	CreatedAt         string   `json:"created_at"`
}

func (Model) TableName() string { return "models" }

// Profile is a reusable preset applied to streams.
type Profile struct {
	ID               int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string  `gorm:"not null" json:"name"`
	SystemPrompt     *string `json:"system_prompt"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	OpenRouterPreset *string `gorm:"column:openrouter_preset" json:"openrouter_preset"`
	CreatedAt        string  `json:"created_at"`
}

func (Profile) TableName() string { return "profiles" }

// Session is a conversation container. ProfileID is nulled by the store
// when the referenced profile is deleted.
type Session struct {
	ID          string  `gorm:"primaryKey" json:"id"`
	SessionType string  `gorm:"column:session_type;not null" json:"session_type"`
	Title       *string `json:"title"`
	ProfileID   *int64  `json:"profile_id"`
	CreatedAt   string  `json:"created_at"`
}

func (Session) TableName() string { return "sessions" }

type Message struct {
	ID        string `gorm:"primaryKey" json:"id"`
	SessionID string `gorm:"column:session_id;not null" json:"session_id"`
	Role      string `gorm:"not null" json:"role"`
	Content   string `gorm:"not null" json:"content"`
	CreatedAt string `json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// UsageLog is one accounting row per successful completion. TotalTokens is
// always the sum of the two counters and CostUSD uses dollars-per-token
// unit prices.
type UsageLog struct {
	ID               string  `gorm:"primaryKey" json:"id"`
	SessionID        string  `gorm:"column:session_id;not null" json:"session_id"`
	ProfileID        *int64  `json:"profile_id"`
	ModelID          *string `gorm:"column:model_id" json:"model_id"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `gorm:"column:cost_usd" json:"cost_usd"`
	CreatedAt        string  `json:"created_at"`
}

func (UsageLog) TableName() string { return "usage_logs" }

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	SessionChat       = "chat"
	SessionCode       = "code"
	SessionDocuments  = "documents"
	SessionPlayground = "playground"
)

var (
	roles        = []string{RoleSystem, RoleUser, RoleAssistant, RoleTool}
	sessionTypes = []string{SessionChat, SessionCode, SessionDocuments, SessionPlayground}
)

func ValidRole(role string) bool { return slices.Contains(roles, role) }

func ValidSessionType(t string) bool { return slices.Contains(sessionTypes, t) }

// Defaults applied when neither an override nor a profile supplies a value.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)
