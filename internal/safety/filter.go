// Package safety gates pipeline content through an external classification
// endpoint. The policy is fail-closed: if the endpoint cannot give a verdict
// (timeout, transport error, bad response), the text is treated as sensitive
// rather than let through silently.
package safety

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	// Endpoint is the classification URL. Empty disables the filter: every
	// text is reported non-sensitive without a network call.
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Filter classifies text blobs as sensitive or not.
type Filter struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func New(cfg Config) *Filter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Filter{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		http:     &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a classification endpoint is configured.
func (f *Filter) Enabled() bool {
	return f != nil && f.endpoint != ""
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Sensitive *bool `json:"sensitive"`
}

// Classify reports whether text is sensitive. Empty text is never sensitive.
// On any endpoint failure the verdict is sensitive=true and the underlying
// error is returned for logging; callers must not treat the error as a
// reason to skip the gate.
func (f *Filter) Classify(ctx context.Context, text string) (bool, error) {
	if !f.Enabled() || strings.TrimSpace(text) == "" {
		return false, nil
	}

	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return true, fmt.Errorf("marshal classify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return true, fmt.Errorf("new classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("classify request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return true, fmt.Errorf("classify: unexpected status %s", resp.Status)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return true, fmt.Errorf("classify: decode response: %w", err)
	}
	if parsed.Sensitive == nil {
		return true, fmt.Errorf("classify: response missing verdict")
	}
	return *parsed.Sensitive, nil
}
