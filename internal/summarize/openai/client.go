// Package openai implements the summarizer against any OpenAI-compatible
// chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/arxivdaily/enhancer/internal/summarize"
	"github.com/arxivdaily/enhancer/internal/worker"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey string
	Model  string

	// BaseURL points at any OpenAI-compatible endpoint; the chat-completions
	// path is appended.
	BaseURL string

	// Language is the target output language interpolated into the system
	// prompt.
	Language string
}

type Client struct {
	apiKey  string
	model   string
	baseURL string
	system  string
	http    *http.Client
}

var _ summarize.Summarizer = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("MODEL_NAME is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		baseURL: base,
		system:  summarize.BuildSystemPrompt(cfg.Language),
		// Per-request deadlines come from the worker pool context.
		http: &http.Client{},
	}, nil
}

func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
	Temperature    float64       `json:"temperature"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Summarize sends the abstract with the fixed system prompt and JSON-object
// response format. A response that dodges the schema goes through field
// recovery; transport and provider errors are classified for retry.
func (c *Client) Summarize(ctx context.Context, abstract string) (summarize.Fields, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.system},
			{Role: "user", Content: abstract},
		},
		ResponseFormat: &formatSpec{Type: "json_object"},
		Temperature:    0,
	})
	if err != nil {
		return summarize.Fields{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return summarize.Fields{}, fmt.Errorf("new chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return summarize.Fields{}, fmt.Errorf("chat request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("chat: unexpected status %s", resp.Status)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5 {
			return summarize.Fields{}, worker.Transient(err)
		}
		return summarize.Fields{}, err
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return summarize.Fields{}, fmt.Errorf("chat: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return summarize.Fields{}, fmt.Errorf("chat: decode envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return summarize.Fields{}, fmt.Errorf("chat: response has no choices")
	}

	fields, err := summarize.ParseResponse(parsed.Choices[0].Message.Content)
	if err != nil {
		return summarize.Fields{}, fmt.Errorf("chat: %w", err)
	}
	return fields, nil
}
