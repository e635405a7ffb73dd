// Package ai holds the OpenRouter HTTP client: catalog listing and the
// streaming chat-completions decoder the pipeline consumes.
package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// ErrMissingAPIKey is returned before any connection is opened when no key
// is configured.
var ErrMissingAPIKey = errors.New("openrouter: api key is not configured")

// ErrIdleTimeout reports that the per-read inactivity budget elapsed while
// waiting for the next upstream chunk.
var ErrIdleTimeout = errors.New("openrouter: stream idle timeout")

// StatusError is a non-success upstream response or an in-band error chunk.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openrouter: status %d: %s", e.Status, e.Body)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Delta is one decoded stream chunk: a token piece, a usage snapshot, or
// both. Providers may refine usage counts over the life of the stream.
type Delta struct {
	Token string
	Usage *Usage
}

// CatalogModel is one row of the provider's model catalog, with prices
// normalized to dollars per token.
type CatalogModel struct {
	ID                string
	Name              string
	ContextLength     *int
	PricingPrompt     *float64
	PricingCompletion *float64
	IsReasoning       bool
}

// ChatRequest describes one streaming completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

type Client struct {
	BaseURL     string
	APIKey      string
	HTTPReferer string
	XTitle      string
	IdleTimeout time.Duration
	// HTTPClient must not carry an overall timeout: streams may
	// legitimately run for minutes.
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey, referer, title string, idle time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		HTTPReferer: referer,
		XTitle:      title,
		IdleTimeout: idle,
		HTTPClient:  &http.Client{},
	}
}

func (c *Client) headers(req *http.Request) error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if c.HTTPReferer != "" {
		req.Header.Set("HTTP-Referer", c.HTTPReferer)
	}
	if c.XTitle != "" {
		req.Header.Set("X-Title", c.XTitle)
	}
	return nil
}

type catalogResp struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		ContextLength *int   `json:"context_length"`
		Pricing       struct {
			Prompt     json.RawMessage `json:"prompt"`
			Completion json.RawMessage `json:"completion"`
		} `json:"pricing"`
		Features struct {
			Reasoning bool `json:"reasoning"`
		} `json:"features"`
		IsReasoning bool `json:"is_reasoning"`
	} `json:"data"`
}

// ListModels fetches the provider catalog. Prices arrive as strings in
// dollars per token and are kept in that unit.
func (c *Client) ListModels(ctx context.Context) ([]CatalogModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/models", nil)
	if err != nil {
		return nil, err
	}
	if err := c.headers(req); err != nil {
		return nil, err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var decoded catalogResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("openrouter: decode /models: %w", err)
	}

	out := make([]CatalogModel, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		out = append(out, CatalogModel{
			ID:                m.ID,
			Name:              name,
			ContextLength:     m.ContextLength,
			PricingPrompt:     parsePrice(m.Pricing.Prompt),
			PricingCompletion: parsePrice(m.Pricing.Completion),
			IsReasoning:       m.Features.Reasoning || m.IsReasoning,
		})
	}
	return out, nil
}

// parsePrice accepts the catalog's price field as either a JSON string or
// number and returns dollars per token.
func parsePrice(raw json.RawMessage) *float64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

type chatPayload struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Usage *Usage `json:"usage"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// StreamChat opens a streaming completion and decodes its `data:` lines
// until the [DONE] sentinel. Cancelling ctx closes the connection; a pause
// longer than IdleTimeout between reads surfaces ErrIdleTimeout. The deltas
// channel is closed on completion; at most one error is sent.
func (c *Client) StreamChat(ctx context.Context, chatReq ChatRequest) (<-chan Delta, <-chan error) {
	deltas := make(chan Delta, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		payload := chatPayload{
			Model:       chatReq.Model,
			Messages:    chatReq.Messages,
			Stream:      true,
			Temperature: chatReq.Temperature,
			MaxTokens:   chatReq.MaxTokens,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			errs <- err
			return
		}

		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		if err := c.headers(req); err != nil {
			errs <- err
			return
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errs <- streamErr(ctx, err, false)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(b))
			if msg == "" {
				msg = fmt.Sprintf("status %d", resp.StatusCode)
			}
			errs <- &StatusError{Status: resp.StatusCode, Body: msg}
			return
		}

		// Inactivity watchdog: every decoded line pushes the deadline out.
		// The flag crosses goroutines, so it must be atomic.
		var idle atomic.Bool
		watchdog := time.AfterFunc(c.IdleTimeout, func() {
			idle.Store(true)
			cancel()
		})
		defer watchdog.Stop()

		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		for sc.Scan() {
			watchdog.Reset(c.IdleTimeout)
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				// Comment lines and unknown payloads are skipped, not fatal.
				continue
			}
			if chunk.Error != nil && chunk.Error.Message != "" {
				status := chunk.Error.Code
				if status == 0 {
					status = http.StatusBadGateway
				}
				errs <- &StatusError{Status: status, Body: chunk.Error.Message}
				return
			}

			d := Delta{Usage: chunk.Usage}
			if len(chunk.Choices) > 0 {
				d.Token = chunk.Choices[0].Delta.Content
				if d.Usage == nil {
					d.Usage = chunk.Choices[0].Usage
				}
			}
			if d.Token == "" && d.Usage == nil {
				continue
			}

			select {
			case deltas <- d:
			case <-streamCtx.Done():
				errs <- streamErr(ctx, streamCtx.Err(), idle.Load())
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- streamErr(ctx, err, idle.Load())
		}
	}()

	return deltas, errs
}

// streamErr classifies a transport-level failure: caller cancellation,
// watchdog expiry, or a genuine transport error.
func streamErr(ctx context.Context, err error, idle bool) error {
	if idle {
		return ErrIdleTimeout
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
