// Package mocksvc emulates the three external services the pipeline calls —
// an OpenAI-compatible chat endpoint, the safety classification endpoint,
// and a GitHub-style repository API — for tests and local end-to-end runs.
package mocksvc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Call records a request made to the mock services.
type Call struct {
	Method string
	Path   string
}

// Server implements a minimal surface of the three upstream APIs.
//
// Behavior knobs are safe to flip between requests; request recording is
// serialized.
type Server struct {
	mu    sync.Mutex
	calls []Call

	// SensitiveTexts lists substrings the classifier flags. When
	// AlwaysSensitive is set every classification returns true.
	sensitiveTexts  []string
	alwaysSensitive bool

	// chatFields is the canned five-field body returned by the chat
	// endpoint; chatRawContent overrides it verbatim when non-empty.
	chatFields     map[string]string
	chatRawContent string
	chatStatus     int

	classifyStatus int

	// repos maps "owner/repo" to star counts; unknown repos 404.
	repoStars map[string]int
}

func New() *Server {
	return &Server{
		chatFields: map[string]string{
			"tldr":       "stub tldr",
			"motivation": "stub motivation",
			"method":     "stub method",
			"result":     "stub result",
			"conclusion": "stub conclusion",
		},
		chatStatus:     http.StatusOK,
		classifyStatus: http.StatusOK,
		repoStars:      map[string]int{},
	}
}

// Handler returns an http.Handler serving all three mock APIs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", s.handleChat)
	mux.HandleFunc("/v1/classify", s.handleClassify)
	mux.HandleFunc("/repos/", s.handleRepo)
	return mux
}

// Calls returns a snapshot of requests made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many requests hit the given path.
func (s *Server) CallCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// SetAlwaysSensitive makes every classification verdict sensitive.
func (s *Server) SetAlwaysSensitive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alwaysSensitive = v
}

// SetSensitiveTexts flags classifications whose text contains any substring.
func (s *Server) SetSensitiveTexts(substrings ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensitiveTexts = substrings
}

// SetClassifyStatus forces the classifier HTTP status (non-200 simulates an
// endpoint outage).
func (s *Server) SetClassifyStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifyStatus = code
}

// SetChatStatus forces the chat endpoint HTTP status.
func (s *Server) SetChatStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatStatus = code
}

// SetChatFields replaces the canned summary fields.
func (s *Server) SetChatFields(fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatFields = fields
	s.chatRawContent = ""
}

// SetChatRawContent makes the chat endpoint return content verbatim,
// bypassing the canned fields. Used to exercise schema-recovery paths.
func (s *Server) SetChatRawContent(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatRawContent = content
}

// SetRepoStars registers a repository with a star count.
func (s *Server) SetRepoStars(ownerRepo string, stars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repoStars[ownerRepo] = stars
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	status := s.chatStatus
	raw := s.chatRawContent
	fields := s.chatFields
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "chat unavailable", status)
		return
	}

	content := raw
	if content == "" {
		b, _ := json.Marshal(fields)
		content = string(b)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	status := s.classifyStatus
	always := s.alwaysSensitive
	substrings := s.sensitiveTexts
	s.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, "classifier unavailable", status)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	sensitive := always
	for _, sub := range substrings {
		if sub != "" && strings.Contains(strings.ToLower(req.Text), strings.ToLower(sub)) {
			sensitive = true
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"sensitive": sensitive})
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	ownerRepo := strings.Trim(strings.TrimPrefix(r.URL.Path, "/repos/"), "/")

	s.mu.Lock()
	stars, ok := s.repoStars[ownerRepo]
	s.mu.Unlock()

	if !ok {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"html_url":         fmt.Sprintf("https://github.com/%s", ownerRepo),
		"stargazers_count": stars,
		"pushed_at":        "2026-08-20T10:00:00Z",
	})
}
