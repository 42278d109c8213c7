// Package repolink detects source-code links in abstracts and fetches
// lightweight repository metadata from the GitHub REST API. Lookup is
// best-effort: any failure yields no metadata, never a failed record.
package repolink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/arxivdaily/enhancer/internal/paper"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 10 * time.Second
	apiVersion     = "2022-11-28"
)

// Matches the first owner/repo pair in a github.com URL. Trailing punctuation
// common in prose ("...available at https://github.com/acme/widget.") is
// excluded by the repo-segment character class.
var repoURLRe = regexp.MustCompile(`https?://(?:www\.)?github\.com/([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)/([A-Za-z0-9._-]*[A-Za-z0-9_-])`)

type Config struct {
	// Token is an optional GitHub token; unauthenticated lookups work but
	// rate-limit quickly.
	Token string
	// BaseURL overrides the GitHub API base URL for tests.
	BaseURL string
	Timeout time.Duration
}

type Enricher struct {
	token   string
	baseURL string
	http    *http.Client
}

func New(cfg Config) *Enricher {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Enricher{
		token:   strings.TrimSpace(cfg.Token),
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// FindRepoURL returns the first recognizable repository URL in text, or ""
// when there is none.
func FindRepoURL(text string) string {
	m := repoURLRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	repo := strings.TrimSuffix(m[2], ".git")
	return fmt.Sprintf("https://github.com/%s/%s", m[1], repo)
}

type repoResponse struct {
	HTMLURL         string    `json:"html_url"`
	StargazersCount int       `json:"stargazers_count"`
	PushedAt        time.Time `json:"pushed_at"`
}

// Find scans text for a repository link and looks up its metadata. Returns
// nil when no link is present or the lookup fails for any reason; the error
// is informational only.
func (e *Enricher) Find(ctx context.Context, text string) (*paper.RepoMeta, error) {
	repoURL := FindRepoURL(text)
	if repoURL == "" {
		return nil, nil
	}

	m := repoURLRe.FindStringSubmatch(repoURL)
	owner, repo := m[1], m[2]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s", e.baseURL, owner, repo), nil)
	if err != nil {
		return nil, fmt.Errorf("new repo request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("repo lookup %s/%s: %w", owner, repo, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("repo lookup %s/%s: unexpected status %s", owner, repo, resp.Status)
	}

	var parsed repoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("repo lookup %s/%s: decode: %w", owner, repo, err)
	}

	meta := &paper.RepoMeta{
		URL:   repoURL,
		Stars: parsed.StargazersCount,
	}
	if parsed.HTMLURL != "" {
		meta.URL = parsed.HTMLURL
	}
	if !parsed.PushedAt.IsZero() {
		meta.LastUpdate = parsed.PushedAt.UTC().Format("2006-01-02")
	}
	return meta, nil
}
