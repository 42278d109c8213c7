package summarize_test

import (
	"strings"
	"testing"

	"github.com/arxivdaily/enhancer/internal/summarize"
)

func TestParseResponse_WellFormed(t *testing.T) {
	t.Parallel()

	f, err := summarize.ParseResponse(`{"tldr":"a","motivation":"b","method":"c","result":"d","conclusion":"e"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.TLDR != "a" || f.Motivation != "b" || f.Method != "c" || f.Result != "d" || f.Conclusion != "e" {
		t.Fatalf("unexpected fields: %#v", f)
	}
}

func TestParseResponse_CodeFence(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"tldr\":\"fenced\",\"motivation\":\"m\",\"method\":\"x\",\"result\":\"r\",\"conclusion\":\"c\"}\n```"
	f, err := summarize.ParseResponse(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.TLDR != "fenced" {
		t.Fatalf("unexpected fields: %#v", f)
	}
}

func TestParseResponse_RecoversPartialFields(t *testing.T) {
	t.Parallel()

	raw := `Sure! Here is the summary:
"tldr": "short version",
"method": "we measured \"things\"",
and that's all I can say.`

	f, err := summarize.ParseResponse(raw)
	if err != nil {
		t.Fatalf("expected recovery, got error: %v", err)
	}
	if f.TLDR != "short version" {
		t.Fatalf("tldr not recovered: %#v", f)
	}
	if f.Method != `we measured "things"` {
		t.Fatalf("escaped value not recovered: %#v", f)
	}
	if f.Motivation != "" || f.Result != "" || f.Conclusion != "" {
		t.Fatalf("unexpected recovered fields: %#v", f)
	}
}

func TestParseResponse_NothingRecoverable(t *testing.T) {
	t.Parallel()

	_, err := summarize.ParseResponse("I refuse to answer in the requested format.")
	if err == nil {
		t.Fatal("expected schema error")
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	t.Parallel()

	p := summarize.BuildSystemPrompt("Chinese")
	if !strings.Contains(p, "written in Chinese") {
		t.Fatalf("language not interpolated: %q", p)
	}
	if !strings.Contains(summarize.BuildSystemPrompt(""), "written in English") {
		t.Fatal("empty language should default to English")
	}
}
