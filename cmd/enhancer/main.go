package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/arxivdaily/enhancer/internal/app"
	"github.com/arxivdaily/enhancer/internal/config"
	"github.com/arxivdaily/enhancer/internal/digest"
	"github.com/arxivdaily/enhancer/internal/store"
	"github.com/arxivdaily/enhancer/internal/util"
)

func main() {
	ctx := context.Background()

	// Best-effort: a missing .env just means the environment is already set.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "enhance":
		os.Exit(runEnhance(ctx, os.Args[2:]))
	case "digest":
		os.Exit(runDigest(os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runEnhance(ctx context.Context, args []string) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("enhance", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var inputPath string
	var outputPath string
	fs.StringVar(&inputPath, "input", "", "Input JSONL file of crawled papers")
	fs.StringVar(&outputPath, "output", "", "Output JSONL file of enhanced papers")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model identifier (env: MODEL_NAME)")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "Target summary language (env: LANGUAGE)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of concurrent enhancement workers (env: WORKERS)")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Max retries per record for transient failures (env: MAX_RETRIES)")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "Per-record request timeout (env: REQUEST_TIMEOUT)")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", cfg.RateLimitRPS, "Global request rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	fs.BoolVar(&cfg.DropFailed, "drop-failed", cfg.DropFailed, "Drop failed records instead of emitting placeholders (env: DROP_FAILED)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" || outputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "enhance requires --input and --output")
		return 2
	}

	if err := app.Run(ctx, inputPath, outputPath, cfg, nil); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "enhance run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func runDigest(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var inputPath string
	var htmlPath string
	var keywordsFlag string
	var date string
	var send bool
	fs.StringVar(&inputPath, "input", "", "Enhanced JSONL file to digest")
	fs.StringVar(&htmlPath, "html", "", "Write the rendered digest HTML to this path")
	fs.StringVar(&keywordsFlag, "keywords", strings.Join(cfg.Digest.Keywords, ","), "Comma-separated keywords to filter on")
	fs.StringVar(&date, "date", time.Now().Format("2006-01-02"), "Digest date shown in the header")
	fs.BoolVar(&send, "send", false, "Send the digest via the configured SMTP server")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "digest requires --input")
		return 2
	}

	recs, err := store.ReadEnhancedFile(inputPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "digest read failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}

	keywords := splitKeywords(keywordsFlag)
	matched := digest.Filter(recs, keywords)
	html, err := digest.RenderHTML(matched, keywords, date)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "digest render failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}

	if htmlPath != "" {
		if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "digest write failed: %s\n", err)
			return 1
		}
	}
	if send {
		subject := fmt.Sprintf("Daily arXiv Digest - %s (%d papers)", date, len(matched))
		if err := digest.SendEmail(digest.SMTPConfig(cfg.Digest.SMTP), subject, html); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "digest send failed: %s\n", util.RedactSecrets(err.Error()))
			return 1
		}
	}
	if htmlPath == "" && !send {
		_, _ = fmt.Fprint(os.Stdout, html)
	}
	fmt.Fprintf(os.Stderr, "digest: %d of %d records matched\n", len(matched), len(recs))
	return 0
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `enhancer: AI enhancement pipeline for crawled arXiv papers

Usage:
  enhancer <command> [flags]

Commands:
  enhance  Enhance a JSONL file of crawled papers (LLM credentials required)
  digest   Filter an enhanced JSONL file by keyword and render an HTML digest

Examples:
  enhancer enhance --input data/2026-08-29.jsonl --output data/2026-08-29_AI_enhanced_Chinese.jsonl
  enhancer digest --input data/2026-08-29_AI_enhanced_Chinese.jsonl --keywords "sign language" --html digest.html

Environment (LLM provider):
  LLM_PROVIDER     openai (default) or gemini
  OPENAI_API_KEY   API key for the OpenAI-compatible endpoint
  OPENAI_BASE_URL  Optional OpenAI-compatible base URL override
  GEMINI_API_KEY   API key when LLM_PROVIDER=gemini
  GEMINI_BASE_URL  Optional Gemini base URL override (proxies/testing)
  MODEL_NAME       Model identifier (required)
  LANGUAGE         Target summary language (default English)

Environment (pipeline):
  WORKERS          Concurrent enhancement workers (default 8)
  MAX_RETRIES      Retries per record for transient failures (default 3)
  REQUEST_TIMEOUT  Per-record request timeout (default 30s)
  RATE_LIMIT_RPS   Global request rate limit, 0 disables
  DROP_FAILED      Drop failed records instead of placeholder summaries

Environment (collaborator services):
  SAFETY_ENDPOINT  Content classification endpoint (unset disables the gate)
  SAFETY_API_KEY   Bearer token for the classification endpoint
  SAFETY_TIMEOUT   Classification timeout (default 5s)
  GITHUB_TOKEN     Token for repository metadata lookups
  GITHUB_BASE_URL  Optional GitHub API base URL override

Config file:
  ENHANCER_CONFIG  Optional YAML file; environment variables win

`)
}
