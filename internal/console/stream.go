package console

import (
	"context"
	"errors"
	"strings"

	"github.com/orconsole/server/internal/ai"
	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/common"
	"github.com/orconsole/server/internal/sse"
)

// Upstream is the slice of the provider client the pipeline needs.
type Upstream interface {
	StreamChat(ctx context.Context, req ai.ChatRequest) (<-chan ai.Delta, <-chan error)
}

// Pipeline runs one streaming request end to end: preflight resolution,
// upstream relay, then persistence and the terminal frame.
type Pipeline struct {
	repo      *Repo
	upstream  Upstream
	hasAPIKey bool
}

func NewPipeline(repo *Repo, upstream Upstream, hasAPIKey bool) *Pipeline {
	return &Pipeline{repo: repo, upstream: upstream, hasAPIKey: hasAPIKey}
}

// StreamRequest is the validated input of one stream. Explicit overrides
// win over profile values, which win over defaults. ExtraMessages are
// appended after the stored history (document QA context); they are sent
// upstream but never persisted.
type StreamRequest struct {
	SessionID     string
	ModelID       string
	ProfileID     *int64
	Temperature   *float64
	MaxTokens     *int
	ExtraMessages []ai.Message
}

// StreamPlan is a fully resolved stream ready to run.
type StreamPlan struct {
	SessionID   string
	ModelID     string
	ProfileID   *int64
	Temperature float64
	MaxTokens   int
	Messages    []ai.Message
	// StartExtra adds fields to the start frame (e.g. document_id).
	StartExtra map[string]any
}

// Preflight resolves session, profile and effective parameters. It returns
// a typed error instead of raising so the handler can emit it as a single
// SSE error frame.
func (p *Pipeline) Preflight(ctx context.Context, req StreamRequest) (*StreamPlan, *apierr.Error) {
	if !p.hasAPIKey {
		return nil, apierr.MissingAPIKey()
	}

	session, err := p.repo.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, apierr.From(err)
	}

	// Explicit profile_id wins over the session default; neither set
	// means no profile at all.
	profileID := req.ProfileID
	if profileID == nil {
		profileID = session.ProfileID
	}
	var profile *Profile
	if profileID != nil {
		profile, err = p.repo.GetProfile(ctx, *profileID)
		if err != nil {
			return nil, apierr.From(err)
		}
	}

	temperature := DefaultTemperature
	maxTokens := DefaultMaxTokens
	if profile != nil {
		temperature = profile.Temperature
		maxTokens = profile.MaxTokens
	}
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	modelID := req.ModelID
	if profile != nil && profile.OpenRouterPreset != nil {
		modelID = applyPreset(modelID, *profile.OpenRouterPreset)
	}

	history, err := p.repo.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, apierr.From(err)
	}

	messages := make([]ai.Message, 0, len(history)+len(req.ExtraMessages)+1)
	if profile != nil && profile.SystemPrompt != nil && strings.TrimSpace(*profile.SystemPrompt) != "" {
		// Synthetic turn: sent upstream, never persisted.
		messages = append(messages, ai.Message{Role: RoleSystem, Content: *profile.SystemPrompt})
	}
	for _, m := range history {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, req.ExtraMessages...)

	return &StreamPlan{
		SessionID:   session.ID,
		ModelID:     modelID,
		ProfileID:   profileID,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    messages,
	}, nil
}

// applyPreset suffixes the model id with "@preset/<label>" unless a preset
// is already present.
func applyPreset(modelID, preset string) string {
	if preset == "" || strings.Contains(modelID, "@preset/") {
		return modelID
	}
	if !strings.HasPrefix(preset, "@preset/") {
		preset = "@preset/" + preset
	}
	return modelID + preset
}

// Run executes a resolved plan against the client connection. Exactly one
// terminal frame is emitted unless the downstream is already gone; failed
// or cancelled streams persist nothing.
func (p *Pipeline) Run(ctx context.Context, plan *StreamPlan, w *sse.Writer, requestID string) {
	log := common.RequestLogger(requestID).With("session_id", plan.SessionID, "model", plan.ModelID)

	start := map[string]any{"session_id": plan.SessionID, "model_id": plan.ModelID}
	for k, v := range plan.StartExtra {
		start[k] = v
	}
	if err := w.Send(sse.EventStart, start); err != nil {
		log.Info("stream client gone before start")
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltas, errs := p.upstream.StreamChat(streamCtx, ai.ChatRequest{
		Model:       plan.ModelID,
		Messages:    plan.Messages,
		Temperature: plan.Temperature,
		MaxTokens:   plan.MaxTokens,
	})

	var assistant strings.Builder
	var usage *ai.Usage
	for d := range deltas {
		if d.Usage != nil {
			u := *d.Usage
			if u.TotalTokens == 0 {
				u.TotalTokens = u.PromptTokens + u.CompletionTokens
			}
			usage = &u
		}
		if d.Token == "" {
			continue
		}
		assistant.WriteString(d.Token)
		if err := w.Send(sse.EventToken, map[string]string{"token": d.Token}); err != nil {
			// Downstream hung up: tear down upstream, persist nothing.
			log.Info("stream cancelled: client disconnected")
			return
		}
	}

	select {
	case err := <-errs:
		if err != nil {
			p.finishWithError(ctx, log, w, requestID, err)
			return
		}
	default:
	}

	// Upstream completed: persist, then the terminal done frame.
	text := assistant.String()
	if strings.TrimSpace(text) != "" {
		if _, err := p.repo.AddMessage(ctx, plan.SessionID, RoleAssistant, text); err != nil {
			log.Error("persist assistant message failed", "error", err)
			_ = w.Send(sse.EventError, apierr.From(err).StreamEnvelope(requestID))
			return
		}
	}
	if usage != nil {
		_, err := p.repo.InsertUsageLog(ctx, UsageInput{
			SessionID:        plan.SessionID,
			ModelID:          &plan.ModelID,
			ProfileID:        plan.ProfileID,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		})
		if err != nil {
			log.Error("persist usage log failed", "error", err)
			_ = w.Send(sse.EventError, apierr.From(err).StreamEnvelope(requestID))
			return
		}
	}

	_ = w.Send(sse.EventDone, map[string]any{"assistant": text, "usage": usage})
	log.Info("stream completed", "assistant_chars", len(text))
}

// finishWithError maps an upstream failure to its terminal frame. Client
// cancellation emits nothing: the connection is already gone.
func (p *Pipeline) finishWithError(ctx context.Context, log interface {
	Info(string, ...any)
	Error(string, ...any)
}, w *sse.Writer, requestID string, err error) {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		log.Info("stream cancelled: client disconnected")
	case errors.Is(err, ai.ErrIdleTimeout):
		log.Error("stream idle timeout")
		e := apierr.Internal(apierr.CodeStreamError, "Upstream stream stalled past the inactivity deadline")
		_ = w.Send(sse.EventError, e.StreamEnvelope(requestID))
	case errors.Is(err, ai.ErrMissingAPIKey):
		_ = w.Send(sse.EventError, apierr.MissingAPIKey().StreamEnvelope(requestID))
	default:
		var statusErr *ai.StatusError
		if errors.As(err, &statusErr) {
			log.Error("openrouter error", "upstream_status", statusErr.Status, "body", statusErr.Body)
			_ = w.Send(sse.EventError, apierr.OpenRouter(statusErr.Status, statusErr.Body).StreamEnvelope(requestID))
			return
		}
		log.Error("stream error", "error", err)
		e := apierr.Internal(apierr.CodeStreamError, "An internal error occurred while processing the stream")
		_ = w.Send(sse.EventError, e.StreamEnvelope(requestID))
	}
}
