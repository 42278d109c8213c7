package summarize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Matches `"field": "value"` pairs inside otherwise malformed responses.
// Good enough for the common failure modes: fenced code blocks, leading
// prose, trailing commentary around a mostly-JSON body.
var fieldPairRe = regexp.MustCompile(`"(tldr|motivation|method|result|conclusion)"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// ParseResponse decodes a provider response into Fields. When the body is
// not the requested JSON object it falls back to extracting recognizable
// field/value pairs from the raw text. The error is non-nil only when
// nothing at all could be recovered.
func ParseResponse(raw string) (Fields, error) {
	raw = strings.TrimSpace(raw)
	raw = stripCodeFence(raw)

	var f Fields
	if err := json.Unmarshal([]byte(raw), &f); err == nil {
		return f, nil
	}

	recovered := false
	for _, m := range fieldPairRe.FindAllStringSubmatch(raw, -1) {
		var value string
		if err := json.Unmarshal([]byte(`"`+m[2]+`"`), &value); err != nil {
			value = m[2]
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		f.set(m[1], value)
		recovered = true
	}
	if !recovered {
		return Fields{}, fmt.Errorf("response does not match the summary schema")
	}
	return f, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
