package paper

import "strings"

// PlaceholderText backfills summary fields the model failed to produce.
const PlaceholderText = "Processing failed"

// Paper is one crawled arXiv record as emitted by the crawler, one JSON
// object per line. The enhancement stage treats it as read-only.
type Paper struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Authors    []string `json:"authors"`
	Abstract   string   `json:"summary"`
	Categories []string `json:"categories"`
	AbsURL     string   `json:"abs,omitempty"`
	PDFURL     string   `json:"pdf,omitempty"`
}

// Summary is the structured five-field model output. Every field is required
// in persisted records; missing fields are backfilled with PlaceholderText.
type Summary struct {
	TLDR       string `json:"tldr"`
	Motivation string `json:"motivation"`
	Method     string `json:"method"`
	Result     string `json:"result"`
	Conclusion string `json:"conclusion"`
}

// Placeholder returns a Summary with every field set to PlaceholderText.
func Placeholder() Summary {
	return Summary{
		TLDR:       PlaceholderText,
		Motivation: PlaceholderText,
		Method:     PlaceholderText,
		Result:     PlaceholderText,
		Conclusion: PlaceholderText,
	}
}

// Backfill replaces empty fields with PlaceholderText so persisted summaries
// are never partially populated.
func (s Summary) Backfill() Summary {
	fill := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return PlaceholderText
		}
		return v
	}
	return Summary{
		TLDR:       fill(s.TLDR),
		Motivation: fill(s.Motivation),
		Method:     fill(s.Method),
		Result:     fill(s.Result),
		Conclusion: fill(s.Conclusion),
	}
}

// Complete reports whether all five fields are non-empty.
func (s Summary) Complete() bool {
	return strings.TrimSpace(s.TLDR) != "" &&
		strings.TrimSpace(s.Motivation) != "" &&
		strings.TrimSpace(s.Method) != "" &&
		strings.TrimSpace(s.Result) != "" &&
		strings.TrimSpace(s.Conclusion) != ""
}

// JoinedText concatenates the five fields for post-generation safety checks.
func (s Summary) JoinedText() string {
	return strings.Join([]string{s.TLDR, s.Motivation, s.Method, s.Result, s.Conclusion}, "\n")
}

// RepoMeta is lightweight metadata for a source-code repository linked from
// an abstract.
type RepoMeta struct {
	URL        string
	Stars      int
	LastUpdate string
}

// Enhanced is a Paper plus its attached Summary and optional repository
// metadata, matching the persisted JSONL shape consumed by the renderer and
// the frontend.
type Enhanced struct {
	Paper

	AI      Summary `json:"AI"`
	CodeURL string  `json:"code_url,omitempty"`
	// CodeStars is a pointer so a found zero-star repository still
	// serializes, distinct from "no repository".
	CodeStars      *int   `json:"code_stars,omitempty"`
	CodeLastUpdate string `json:"code_last_update,omitempty"`
}

// WithRepo attaches repository metadata to an enhanced record. A nil meta is
// a no-op.
func (e Enhanced) WithRepo(meta *RepoMeta) Enhanced {
	if meta == nil {
		return e
	}
	e.CodeURL = meta.URL
	stars := meta.Stars
	e.CodeStars = &stars
	e.CodeLastUpdate = meta.LastUpdate
	return e
}
