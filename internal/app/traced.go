package app

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/arxivdaily/enhancer/internal/pipeline"
	"github.com/arxivdaily/enhancer/internal/summarize"
	"github.com/arxivdaily/enhancer/internal/util"
	"github.com/arxivdaily/enhancer/internal/worker"
)

// tracedSummarizer logs one request/response line per model call, counting
// attempts per record, without leaking abstracts or credentials into the log.
type tracedSummarizer struct {
	next   summarize.Summarizer
	logger *log.Logger
	runID  string

	mu       sync.Mutex
	attempts map[string]int
}

func newTracedSummarizer(next summarize.Summarizer, logger *log.Logger, runID string) *tracedSummarizer {
	return &tracedSummarizer{
		next:     next,
		logger:   logger,
		runID:    runID,
		attempts: make(map[string]int),
	}
}

func (t *tracedSummarizer) Model() string { return t.next.Model() }

func (t *tracedSummarizer) Summarize(ctx context.Context, abstract string) (summarize.Fields, error) {
	id, ok := pipeline.RecordID(ctx)
	if !ok {
		id = "unknown"
	}
	attempt := t.nextAttempt(id)

	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	t.logger.Printf(
		"run=%s summarize request: id=%s model=%s attempt=%d abstractLen=%d deadlineIn=%s",
		t.runID,
		id,
		t.next.Model(),
		attempt,
		len(abstract),
		deadlineIn,
	)

	start := time.Now()
	out, err := t.next.Summarize(ctx, abstract)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		t.logger.Printf(
			"run=%s summarize response: id=%s model=%s attempt=%d duration=%s status=error retryable=%t error=%q",
			t.runID,
			id,
			t.next.Model(),
			attempt,
			elapsed,
			worker.IsTransient(err),
			util.RedactSecrets(err.Error()),
		)
		return out, err
	}

	t.logger.Printf(
		"run=%s summarize response: id=%s model=%s attempt=%d duration=%s status=ok tldrLen=%d",
		t.runID,
		id,
		t.next.Model(),
		attempt,
		elapsed,
		len(out.TLDR),
	)
	return out, nil
}

func (t *tracedSummarizer) nextAttempt(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[id]++
	return t.attempts[id]
}
