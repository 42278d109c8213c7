// Package summarize turns a paper abstract into the structured five-field
// summary attached to enhanced records. Providers request schema-constrained
// output; responses that still miss the schema go through best-effort field
// recovery with placeholder backfill so a summary is never partial.
package summarize

import (
	"context"
	"fmt"
	"strings"
)

// Summarizer produces a structured summary for one abstract. Implementations
// do not retry; transient failures are wrapped for the worker pool to retry.
type Summarizer interface {
	Summarize(ctx context.Context, abstract string) (Fields, error)
	Model() string
}

// Fields is the provider-facing five-field schema. It mirrors the persisted
// AI object exactly.
type Fields struct {
	TLDR       string `json:"tldr"`
	Motivation string `json:"motivation"`
	Method     string `json:"method"`
	Result     string `json:"result"`
	Conclusion string `json:"conclusion"`
}

func (f *Fields) set(name, value string) {
	switch name {
	case "tldr":
		f.TLDR = value
	case "motivation":
		f.Motivation = value
	case "method":
		f.Method = value
	case "result":
		f.Result = value
	case "conclusion":
		f.Conclusion = value
	}
}

// SystemPrompt is the fixed instruction sent with every request; the target
// output language is interpolated once per run.
const SystemPrompt = `You are a research assistant summarizing arXiv papers.
Given a paper abstract, respond with a JSON object containing exactly these keys:
- tldr: one-sentence takeaway
- motivation: why the problem matters
- method: the approach taken
- result: the main findings
- conclusion: what follows from the findings

Every value must be plain text written in %s. Do not include extra keys.`

// BuildSystemPrompt interpolates the target language into SystemPrompt.
func BuildSystemPrompt(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = "English"
	}
	return fmt.Sprintf(SystemPrompt, language)
}
