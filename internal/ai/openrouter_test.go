package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newStreamServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", "", "", time.Second)
}

func collect(t *testing.T, deltas <-chan Delta, errs <-chan error) ([]Delta, error) {
	t.Helper()
	var out []Delta
	for d := range deltas {
		out = append(out, d)
	}
	return out, <-errs
}

func TestStreamChat_DecodesTokensAndUsage(t *testing.T) {
	c := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("missing auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{}}],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":2,\"total_tokens\":5}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	deltas, errs := c.StreamChat(context.Background(), ChatRequest{Model: "m", Messages: []Message{{Role: "user", Content: "hi"}}})
	got, err := collect(t, deltas, errs)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var text string
	var usage *Usage
	for _, d := range got {
		text += d.Token
		if d.Usage != nil {
			usage = d.Usage
		}
	}
	if text != "Hello" {
		t.Fatalf("expected Hello, got %q", text)
	}
	if usage == nil || usage.PromptTokens != 3 || usage.CompletionTokens != 2 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestStreamChat_InBandError(t *testing.T) {
	c := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"model overloaded\",\"code\":503}}\n\n")
	})

	deltas, errs := c.StreamChat(context.Background(), ChatRequest{Model: "m"})
	_, err := collect(t, deltas, errs)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != 503 || statusErr.Body != "model overloaded" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestStreamChat_HTTPErrorStatus(t *testing.T) {
	c := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	})

	deltas, errs := c.StreamChat(context.Background(), ChatRequest{Model: "m"})
	_, err := collect(t, deltas, errs)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", statusErr.Status)
	}
}

func TestStreamChat_MissingKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", "", "", time.Second)
	deltas, errs := c.StreamChat(context.Background(), ChatRequest{Model: "m"})
	_, err := collect(t, deltas, errs)
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestStreamChat_IdleTimeout(t *testing.T) {
	c := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	c.IdleTimeout = 50 * time.Millisecond

	deltas, errs := c.StreamChat(context.Background(), ChatRequest{Model: "m"})
	_, err := collect(t, deltas, errs)
	if !errors.Is(err, ErrIdleTimeout) {
		t.Fatalf("expected ErrIdleTimeout, got %v", err)
	}
}

func TestStreamChat_CallerCancel(t *testing.T) {
	c := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	deltas, errs := c.StreamChat(ctx, ChatRequest{Model: "m"})

	// Read the first token, then hang up.
	<-deltas
	cancel()
	_, err := collect(t, deltas, errs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestListModels_ParsesStringPrices(t *testing.T) {
	c := newStreamServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[
			{"id":"acme/m1","name":"M1","context_length":8192,"pricing":{"prompt":"0.000001","completion":"0.000002"}},
			{"id":"acme/m2","pricing":{"prompt":null,"completion":null},"is_reasoning":true}
		]}`)
	})

	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(models))
	}
	m1 := models[0]
	if m1.PricingPrompt == nil || *m1.PricingPrompt != 1e-6 {
		t.Fatalf("unexpected prompt price: %+v", m1.PricingPrompt)
	}
	if *m1.ContextLength != 8192 {
		t.Fatalf("unexpected context length: %+v", m1.ContextLength)
	}
	m2 := models[1]
	if m2.Name != "acme/m2" {
		t.Fatalf("expected id fallback for missing name, got %q", m2.Name)
	}
	if m2.PricingPrompt != nil {
		t.Fatalf("expected nil price for null, got %v", *m2.PricingPrompt)
	}
	if !m2.IsReasoning {
		t.Fatalf("expected reasoning flag from is_reasoning")
	}
}
