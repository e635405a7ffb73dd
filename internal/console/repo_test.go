package console

import (
	"context"
	"errors"
	"testing"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/cache"
	"github.com/orconsole/server/internal/store"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	cache.ResetForTest()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("open memory db: %v", err)
	}
	if err := store.MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	return NewRepo(db)
}

func wantCode(t *testing.T, err error, code apierr.Code) {
	t.Helper()
	var e *apierr.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected typed error with code %s, got %v", code, err)
	}
	if e.Code != code {
		t.Fatalf("expected code %s, got %s", code, e.Code)
	}
}

func strPtr(s string) *string     { return &s }
func intPtr(n int) *int           { return &n }
func int64Ptr(n int64) *int64     { return &n }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func TestCreateProfile_AppliesDefaults(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.CreateProfile(ctx, ProfileInput{Name: "writer"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if p.Temperature != DefaultTemperature {
		t.Fatalf("expected default temperature %v, got %v", DefaultTemperature, p.Temperature)
	}
	if p.MaxTokens != DefaultMaxTokens {
		t.Fatalf("expected default max_tokens %d, got %d", DefaultMaxTokens, p.MaxTokens)
	}

	_, err = repo.CreateProfile(ctx, ProfileInput{Name: "   "})
	wantCode(t, err, apierr.CodeValidationError)
}

func TestProfileLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.CreateProfile(ctx, ProfileInput{
		Name:         "coder",
		SystemPrompt: strPtr("be terse"),
		Temperature:  floatPtr(0.2),
		MaxTokens:    intPtr(512),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Temperature != 0.2 || *got.SystemPrompt != "be terse" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	upd, err := repo.UpdateProfile(ctx, p.ID, ProfileInput{Name: "coder2", MaxTokens: intPtr(64)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Name != "coder2" || upd.MaxTokens != 64 {
		t.Fatalf("unexpected update result: %+v", upd)
	}
	// The cached copy must not shadow the update.
	again, err := repo.GetProfile(ctx, p.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if again.Name != "coder2" {
		t.Fatalf("stale cache: got %q", again.Name)
	}

	if err := repo.DeleteProfile(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = repo.GetProfile(ctx, p.ID)
	wantCode(t, err, apierr.CodeProfileNotFound)
	wantCode(t, repo.DeleteProfile(ctx, p.ID), apierr.CodeProfileNotFound)
}

func TestCreateSession_TypeHandling(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, SessionInput{})
	if err != nil {
		t.Fatalf("create default session: %v", err)
	}
	if s.SessionType != SessionChat {
		t.Fatalf("expected default type chat, got %q", s.SessionType)
	}

	_, err = repo.CreateSession(ctx, SessionInput{SessionType: "video"})
	wantCode(t, err, apierr.CodeValidationError)
}

func TestDeleteProfile_NullsSessionReference(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.CreateProfile(ctx, ProfileInput{Name: "p"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	s, err := repo.CreateSession(ctx, SessionInput{ProfileID: &p.ID})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := repo.DeleteProfile(ctx, p.ID); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	got, err := repo.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ProfileID != nil {
		t.Fatalf("expected profile reference to be cleared, got %v", *got.ProfileID)
	}
}

func TestDeleteSession_CascadesToMessages(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, SessionInput{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := repo.AddMessage(ctx, s.ID, RoleUser, "hello"); err != nil {
		t.Fatalf("add message: %v", err)
	}

	if err := repo.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	_, err = repo.GetSession(ctx, s.ID)
	wantCode(t, err, apierr.CodeSessionNotFound)

	var n int64
	if err := repo.db.Model(&Message{}).Count(&n).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected cascade delete of messages, got %d rows", n)
	}
}

func TestAddMessage_Validation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, SessionInput{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	_, err = repo.AddMessage(ctx, s.ID, "narrator", "hi")
	wantCode(t, err, apierr.CodeValidationError)

	_, err = repo.AddMessage(ctx, "no-such-session", RoleUser, "hi")
	wantCode(t, err, apierr.CodeSessionNotFound)
}

func TestListMessages_AscendingOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s, err := repo.CreateSession(ctx, SessionInput{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for _, content := range []string{"one", "two", "three"} {
		if _, err := repo.AddMessage(ctx, s.ID, RoleUser, content); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}

	msgs, err := repo.ListMessages(ctx, s.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if msgs[i].Content != want {
			t.Fatalf("message %d: expected %q, got %q", i, want, msgs[i].Content)
		}
	}
}

func TestListSessions_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateSession(ctx, SessionInput{}); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}
	for _, limit := range []int{-1, 0, 100000} {
		sessions, err := repo.ListSessions(ctx, limit)
		if err != nil {
			t.Fatalf("list sessions limit=%d: %v", limit, err)
		}
		if len(sessions) != 3 {
			t.Fatalf("limit=%d: expected 3 sessions, got %d", limit, len(sessions))
		}
	}
}

func TestUpdateSession_PartialPatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	title := "first"
	s, err := repo.CreateSession(ctx, SessionInput{Title: &title})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Clearing the title must not require touching profile_id.
	var cleared *string
	got, err := repo.UpdateSession(ctx, s.ID, SessionUpdate{Title: &cleared})
	if err != nil {
		t.Fatalf("update session: %v", err)
	}
	if got.Title != nil {
		t.Fatalf("expected cleared title, got %q", *got.Title)
	}
}

func TestSessionProfileReferenceValidated(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.CreateSession(ctx, SessionInput{ProfileID: int64Ptr(404)})
	wantCode(t, err, apierr.CodeProfileNotFound)

	s, err := repo.CreateSession(ctx, SessionInput{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	ghost := int64Ptr(404)
	_, err = repo.UpdateSession(ctx, s.ID, SessionUpdate{ProfileID: &ghost})
	wantCode(t, err, apierr.CodeProfileNotFound)

	// Null still clears the reference.
	p, err := repo.CreateProfile(ctx, ProfileInput{Name: "writer"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	got, err := repo.UpdateSession(ctx, s.ID, SessionUpdate{ProfileID: ptrPtr(int64Ptr(p.ID))})
	if err != nil {
		t.Fatalf("attach profile: %v", err)
	}
	if got.ProfileID == nil || *got.ProfileID != p.ID {
		t.Fatalf("expected attached profile, got %+v", got.ProfileID)
	}
	var cleared *int64
	got, err = repo.UpdateSession(ctx, s.ID, SessionUpdate{ProfileID: &cleared})
	if err != nil {
		t.Fatalf("clear profile: %v", err)
	}
	if got.ProfileID != nil {
		t.Fatalf("expected cleared profile, got %v", *got.ProfileID)
	}
}

func ptrPtr(p *int64) **int64 { return &p }

func TestUpsertModels_PreservesSurrogateID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rows := []CatalogRow{{OpenRouterID: "acme/m1", Name: "M1", PricingPrompt: floatPtr(1e-6)}}
	if _, err := repo.UpsertModels(ctx, rows); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first, err := repo.GetModelByOpenRouterID(ctx, "acme/m1")
	if err != nil || first == nil {
		t.Fatalf("get model: %v", err)
	}

	rows[0].Name = "M1 renamed"
	n, err := repo.UpsertModels(ctx, rows)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 synced row, got %d", n)
	}
	second, err := repo.GetModelByOpenRouterID(ctx, "acme/m1")
	if err != nil || second == nil {
		t.Fatalf("get model after upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("surrogate id changed across upsert: %q -> %q", first.ID, second.ID)
	}
	if second.Name != "M1 renamed" {
		t.Fatalf("expected renamed model, got %q", second.Name)
	}
}

func TestListModels_FiltersAndNullPass(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.UpsertModels(ctx, []CatalogRow{
		{OpenRouterID: "a/tiny", Name: "tiny", ContextLength: intPtr(4096), PricingPrompt: floatPtr(1e-6), IsReasoning: false},
		{OpenRouterID: "a/big", Name: "big", ContextLength: nil, PricingPrompt: nil, IsReasoning: true},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	reasoning, err := repo.ListModels(ctx, ModelFilter{Reasoning: boolPtr(true)})
	if err != nil {
		t.Fatalf("list reasoning: %v", err)
	}
	if len(reasoning) != 1 || reasoning[0].OpenRouterID != "a/big" {
		t.Fatalf("unexpected reasoning filter result: %+v", reasoning)
	}

	// Unknown context length and price pass the numeric filters.
	wide, err := repo.ListModels(ctx, ModelFilter{MinContext: intPtr(8192), MaxPrice: floatPtr(1e-7)})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(wide) != 1 || wide[0].OpenRouterID != "a/big" {
		t.Fatalf("expected null fields to pass filters, got %+v", wide)
	}
}
