package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/cache"
	"github.com/orconsole/server/internal/common"
)

// Repo is the single choke point for persistence. Reads of profiles and the
// model catalog go through the process-local caches; every write path
// invalidates what it may have made stale.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// --- models ---

// ModelFilter narrows ListModels. Nil fields are unconstrained; rows with a
// NULL context length or price pass min_context/max_price, matching the
// catalog's "unknown means allowed" convention.
type ModelFilter struct {
	Reasoning  *bool
	MinContext *int
	MaxPrice   *float64
}

func (f ModelFilter) cacheKey() string {
	r, p, c := "nil", "nil", "nil"
	if f.Reasoning != nil {
		r = strconv.FormatBool(*f.Reasoning)
	}
	if f.MaxPrice != nil {
		p = strconv.FormatFloat(*f.MaxPrice, 'g', -1, 64)
	}
	if f.MinContext != nil {
		c = strconv.Itoa(*f.MinContext)
	}
	return fmt.Sprintf("models_r%s_p%s_c%s", r, p, c)
}

// CatalogRow is one upsert input from the provider sync.
type CatalogRow struct {
	OpenRouterID      string
	Name              string
	ContextLength     *int
	PricingPrompt     *float64
	PricingCompletion *float64
	IsReasoning       bool
}

// UpsertModels refreshes the catalog, preserving the surrogate id of rows
// that already exist. The whole model cache is cleared afterwards.
func (r *Repo) UpsertModels(ctx context.Context, rows []CatalogRow) (int, error) {
	count := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			if row.OpenRouterID == "" {
				continue
			}
			var existing Model
			err := tx.Where("openrouter_id = ?", row.OpenRouterID).First(&existing).Error
			id := existing.ID
			if errors.Is(err, gorm.ErrRecordNotFound) {
				id = common.NewRequestID()
			} else if err != nil {
				return err
			}
			if err := tx.Exec(
				`INSERT INTO models(id, openrouter_id, name, context_length, pricing_prompt, pricing_completion, is_reasoning, created_at)
				 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
				 ON CONFLICT(openrouter_id) DO UPDATE SET
				   name=excluded.name,
				   context_length=excluded.context_length,
				   pricing_prompt=excluded.pricing_prompt,
				   pricing_completion=excluded.pricing_completion,
				   is_reasoning=excluded.is_reasoning`,
				id, row.OpenRouterID, row.Name, row.ContextLength,
				row.PricingPrompt, row.PricingCompletion, row.IsReasoning, common.Now(),
			).Error; err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	cache.Models.Clear()
	return count, nil
}

func (r *Repo) ListModels(ctx context.Context, f ModelFilter) ([]Model, error) {
	key := f.cacheKey()
	if v, ok := cache.Models.Get(key); ok {
		return v.([]Model), nil
	}

	q := r.db.WithContext(ctx).Model(&Model{})
	if f.Reasoning != nil {
		q = q.Where("is_reasoning = ?", *f.Reasoning)
	}
	if f.MinContext != nil {
		q = q.Where("context_length IS NULL OR context_length >= ?", *f.MinContext)
	}
	if f.MaxPrice != nil {
		q = q.Where("(pricing_prompt IS NULL OR pricing_prompt <= ?) AND (pricing_completion IS NULL OR pricing_completion <= ?)",
			*f.MaxPrice, *f.MaxPrice)
	}

	var out []Model
	if err := q.Order("name COLLATE NOCASE ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	cache.Models.Set(key, out)
	return out, nil
}

// GetModelByOpenRouterID resolves a catalog row by its external id.
func (r *Repo) GetModelByOpenRouterID(ctx context.Context, openRouterID string) (*Model, error) {
	var m Model
	err := r.db.WithContext(ctx).Where("openrouter_id = ?", openRouterID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// --- profiles ---

// ProfileInput carries every recognized profile option.
type ProfileInput struct {
	Name             string
	SystemPrompt     *string
	Temperature      *float64
	MaxTokens        *int
	OpenRouterPreset *string
}

func (in ProfileInput) apply(p *Profile) {
	p.Name = in.Name
	p.SystemPrompt = in.SystemPrompt
	p.Temperature = DefaultTemperature
	if in.Temperature != nil {
		p.Temperature = *in.Temperature
	}
	p.MaxTokens = DefaultMaxTokens
	if in.MaxTokens != nil {
		p.MaxTokens = *in.MaxTokens
	}
	p.OpenRouterPreset = in.OpenRouterPreset
}

func (r *Repo) CreateProfile(ctx context.Context, in ProfileInput) (*Profile, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apierr.BadRequest(apierr.CodeValidationError, "profile name must not be empty", nil)
	}
	p := Profile{CreatedAt: common.Now()}
	in.apply(&p)
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	cache.Profiles.Invalidate("profiles_all")
	return &p, nil
}

func (r *Repo) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	key := fmt.Sprintf("profile_%d", id)
	if v, ok := cache.Profiles.Get(key); ok {
		p := v.(Profile)
		return &p, nil
	}

	var p Profile
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound(apierr.CodeProfileNotFound, "profile", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, err
	}
	cache.Profiles.Set(key, p)
	return &p, nil
}

func (r *Repo) UpdateProfile(ctx context.Context, id int64, in ProfileInput) (*Profile, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apierr.BadRequest(apierr.CodeValidationError, "profile name must not be empty", nil)
	}
	var p Profile
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound(apierr.CodeProfileNotFound, "profile", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, err
	}
	in.apply(&p)
	if err := r.db.WithContext(ctx).Save(&p).Error; err != nil {
		return nil, err
	}
	cache.Profiles.Invalidate(fmt.Sprintf("profile_%d", id))
	cache.Profiles.Invalidate("profiles_all")
	return &p, nil
}

func (r *Repo) DeleteProfile(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&Profile{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound(apierr.CodeProfileNotFound, "profile", strconv.FormatInt(id, 10))
	}
	cache.Profiles.Invalidate(fmt.Sprintf("profile_%d", id))
	cache.Profiles.Invalidate("profiles_all")
	return nil
}

func (r *Repo) ListProfiles(ctx context.Context) ([]Profile, error) {
	if v, ok := cache.Profiles.Get("profiles_all"); ok {
		return v.([]Profile), nil
	}
	var out []Profile
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	cache.Profiles.Set("profiles_all", out)
	return out, nil
}

// --- sessions ---

type SessionInput struct {
	SessionType string
	Title       *string
	ProfileID   *int64
}

func (r *Repo) CreateSession(ctx context.Context, in SessionInput) (*Session, error) {
	if in.SessionType == "" {
		in.SessionType = SessionChat
	}
	if !ValidSessionType(in.SessionType) {
		return nil, apierr.BadRequest(apierr.CodeValidationError,
			fmt.Sprintf("invalid session_type %q", in.SessionType), nil)
	}
	if in.ProfileID != nil {
		if _, err := r.GetProfile(ctx, *in.ProfileID); err != nil {
			return nil, err
		}
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	s := Session{
		ID:          id,
		SessionType: in.SessionType,
		Title:       in.Title,
		ProfileID:   in.ProfileID,
		CreatedAt:   common.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound(apierr.CodeSessionNotFound, "session", id)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []Session
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// SessionUpdate applies only the fields the caller set.
type SessionUpdate struct {
	Title     **string
	ProfileID **int64
}

func (r *Repo) UpdateSession(ctx context.Context, id string, upd SessionUpdate) (*Session, error) {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := map[string]any{}
	if upd.Title != nil {
		changes["title"] = *upd.Title
	}
	if upd.ProfileID != nil {
		// Null clears the profile; a concrete id must exist.
		if *upd.ProfileID != nil {
			if _, err := r.GetProfile(ctx, **upd.ProfileID); err != nil {
				return nil, err
			}
		}
		changes["profile_id"] = *upd.ProfileID
	}
	if len(changes) == 0 {
		return s, nil
	}
	if err := r.db.WithContext(ctx).Model(&Session{}).Where("id = ?", id).Updates(changes).Error; err != nil {
		return nil, err
	}
	return r.GetSession(ctx, id)
}

// DeleteSession removes the session; messages and usage rows cascade.
func (r *Repo) DeleteSession(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Session{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apierr.NotFound(apierr.CodeSessionNotFound, "session", id)
	}
	return nil
}

// --- messages ---

func (r *Repo) AddMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	if !ValidRole(role) {
		return nil, apierr.BadRequest(apierr.CodeValidationError, fmt.Sprintf("invalid role %q", role), nil)
	}
	if _, err := r.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	m := Message{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: common.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.NotFound(apierr.CodeMessageNotFound, "message", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns the session history in its total order:
// ascending (created_at, id).
func (r *Repo) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var out []Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
