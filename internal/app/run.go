// Package app wires one enhancement run end to end: load input, skip records
// already present in the destination, enhance the rest, write one artifact.
package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/arxivdaily/enhancer/internal/config"
	"github.com/arxivdaily/enhancer/internal/paper"
	"github.com/arxivdaily/enhancer/internal/pipeline"
	"github.com/arxivdaily/enhancer/internal/repolink"
	"github.com/arxivdaily/enhancer/internal/safety"
	"github.com/arxivdaily/enhancer/internal/store"
	"github.com/arxivdaily/enhancer/internal/summarize"
	"github.com/arxivdaily/enhancer/internal/summarize/gemini"
	"github.com/arxivdaily/enhancer/internal/summarize/openai"
	"github.com/arxivdaily/enhancer/internal/util"
)

// Run executes one batch: configuration problems and unreadable input abort
// before any per-record work; after that the run always produces an output
// file, possibly containing placeholder-summary records.
func Run(ctx context.Context, inputPath, outputPath string, cfg config.Config, logger *log.Logger) error {
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	runID := fmt.Sprintf("run-%d", time.Now().UnixNano())
	logf := func(format string, args ...any) {
		prefix := make([]any, 0, len(args)+1)
		prefix = append(prefix, runID)
		prefix = append(prefix, args...)
		logger.Printf("run=%s "+format, prefix...)
	}
	runStart := time.Now()

	if err := cfg.Validate(); err != nil {
		return err
	}
	summarizer, err := newSummarizer(ctx, cfg)
	if err != nil {
		return err
	}

	inF, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	papers, err := store.ReadPapers(inF)
	_ = inF.Close()
	if err != nil {
		return err
	}

	existing, err := store.ReadEnhancedFile(outputPath)
	if err != nil {
		return fmt.Errorf("read prior output: %w", err)
	}

	plan := buildIncrementalPlan(papers, existing)
	logf(
		"run start: input=%s output=%s provider=%s model=%s language=%s workers=%d inputRecords=%d cachedRecords=%d pendingRecords=%d",
		inputPath,
		outputPath,
		cfg.Provider,
		summarizer.Model(),
		cfg.Language,
		cfg.Workers,
		len(papers),
		plan.skipped,
		len(plan.pending),
	)

	stages := pipeline.Stages{
		Safety:     safety.New(safety.Config(cfg.Safety)),
		Repo:       repolink.New(repolink.Config{Token: cfg.GitHubToken, BaseURL: cfg.GitHubBaseURL}),
		Summarizer: newTracedSummarizer(summarizer, logger, runID),
	}

	enhanceStart := time.Now()
	outcomes, err := pipeline.EnhanceAll(ctx, plan.pending, stages, pipeline.Options{
		Workers:        cfg.Workers,
		MaxRetries:     cfg.MaxRetries,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		DropFailed:     cfg.DropFailed,
		OnProgress: func(completed, total int) {
			logf("progress: completed=%d/%d elapsed=%s", completed, total, time.Since(enhanceStart).Round(time.Millisecond))
		},
		OnRepoError: func(id string, err error) {
			logf("repo lookup skipped: id=%s error=%q", id, util.RedactSecrets(err.Error()))
		},
		OnSafetyError: func(id string, err error) {
			logf("safety check failed closed: id=%s error=%q", id, util.RedactSecrets(err.Error()))
		},
	})
	if err != nil {
		return err
	}

	enhanced, rejected, failed := pipeline.Counts(outcomes)
	logf(
		"enhancement complete: enhanced=%d rejected=%d failed=%d skipped=%d duration=%s",
		enhanced,
		rejected,
		failed,
		plan.skipped,
		time.Since(enhanceStart).Round(time.Millisecond),
	)

	records := append(plan.existing, pipeline.Records(outcomes, cfg.DropFailed)...)

	outF, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := store.WriteEnhanced(outF, records); err != nil {
		_ = outF.Close()
		return err
	}
	if err := outF.Close(); err != nil {
		return err
	}

	logf(
		"run complete: outputRecords=%d totalDuration=%s",
		len(records),
		time.Since(runStart).Round(time.Millisecond),
	)
	return nil
}

func newSummarizer(ctx context.Context, cfg config.Config) (summarize.Summarizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderGemini:
		return gemini.New(ctx, gemini.Config{
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.Model,
			BaseURL:  cfg.GeminiBaseURL,
			Language: cfg.Language,
		})
	default:
		return openai.New(openai.Config{
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.Model,
			BaseURL:  cfg.OpenAIBaseURL,
			Language: cfg.Language,
		})
	}
}

type incrementalPlan struct {
	// existing is carried into the new output untouched.
	existing []paper.Enhanced
	// pending is dispatched to the worker pool, in input order.
	pending []paper.Paper
	skipped int
}

// buildIncrementalPlan drops input records whose identifier already exists
// in the destination, and duplicate identifiers within the input itself, so
// re-runs never repeat model calls.
func buildIncrementalPlan(papers []paper.Paper, existing []paper.Enhanced) incrementalPlan {
	plan := incrementalPlan{existing: existing}
	seen := make(map[string]struct{}, len(existing)+len(papers))
	for _, rec := range existing {
		seen[strings.TrimSpace(rec.ID)] = struct{}{}
	}
	for _, p := range papers {
		id := strings.TrimSpace(p.ID)
		if _, ok := seen[id]; ok {
			plan.skipped++
			continue
		}
		seen[id] = struct{}{}
		plan.pending = append(plan.pending, p)
	}
	return plan
}
