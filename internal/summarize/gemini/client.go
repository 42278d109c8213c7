// Package gemini implements the summarizer on the Gemini API with
// provider-side schema enforcement.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/genai"

	"github.com/arxivdaily/enhancer/internal/summarize"
	"github.com/arxivdaily/enhancer/internal/worker"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// Language is the target output language interpolated into the system
	// prompt.
	Language string
}

type Client struct {
	client *genai.Client
	model  string
	system string
}

var _ summarize.Summarizer = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("MODEL_NAME is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
		system: summarize.BuildSystemPrompt(cfg.Language),
	}, nil
}

func (c *Client) Model() string { return c.model }

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"tldr":       {Type: genai.TypeString},
		"motivation": {Type: genai.TypeString},
		"method":     {Type: genai.TypeString},
		"result":     {Type: genai.TypeString},
		"conclusion": {Type: genai.TypeString},
	},
	Required: []string{
		"tldr",
		"motivation",
		"method",
		"result",
		"conclusion",
	},
}

func (c *Client) Summarize(ctx context.Context, abstract string) (summarize.Fields, error) {
	resp, err := c.client.Models.GenerateContent(
		ctx,
		c.model,
		genai.Text(abstract),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(c.system, genai.RoleUser),
			CandidateCount:    1,
			ResponseMIMEType:  "application/json",
			ResponseSchema:    outputSchema,
		},
	)
	if err != nil {
		return summarize.Fields{}, classifyErr(err)
	}

	fields, err := summarize.ParseResponse(resp.Text())
	if err != nil {
		return summarize.Fields{}, fmt.Errorf("gemini: %w", err)
	}
	return fields, nil
}

func classifyErr(err error) error {
	// Wrap transient failures so the worker pool will retry with backoff.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return worker.Transient(err)
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return worker.Transient(err)
	}
	return err
}
