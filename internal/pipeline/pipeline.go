// Package pipeline runs the per-record enhancement chain — safety gate,
// repository lookup, summary generation, safety gate on the output — across
// a bounded worker pool, and reassembles outcomes in input order.
package pipeline

import (
	"context"
	"time"

	"github.com/arxivdaily/enhancer/internal/paper"
	"github.com/arxivdaily/enhancer/internal/repolink"
	"github.com/arxivdaily/enhancer/internal/safety"
	"github.com/arxivdaily/enhancer/internal/summarize"
	"github.com/arxivdaily/enhancer/internal/worker"
)

// RejectedSensitive is the reason recorded when either safety gate trips.
const RejectedSensitive = "sensitive_content"

type Status int

const (
	// StatusEnhanced: record carries a complete summary.
	StatusEnhanced Status = iota
	// StatusRejected: record is excluded from output entirely.
	StatusRejected
	// StatusFailed: summary generation failed; record carries the full
	// placeholder summary unless the run drops failed records.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusEnhanced:
		return "enhanced"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the per-record result. Batch cardinality is stable: every input
// record resolves to exactly one Outcome; only rejections shrink the output.
type Outcome struct {
	Paper  paper.Paper
	Status Status

	// Record is valid for StatusEnhanced and StatusFailed.
	Record paper.Enhanced

	// Reason is set for StatusRejected.
	Reason string
	// Err is set for StatusFailed.
	Err error
}

// Stages wires the external collaborators of one enhancement run. Repo may
// be nil to skip repository lookups.
type Stages struct {
	Safety     *safety.Filter
	Repo       *repolink.Enricher
	Summarizer summarize.Summarizer
}

type Options struct {
	Workers        int
	MaxRetries     int
	RequestTimeout time.Duration
	RateLimitRPS   float64

	// DropFailed excludes failed records from output instead of emitting
	// them with placeholder summaries.
	DropFailed bool

	// OnProgress receives (completed, total) as records resolve.
	OnProgress func(completed, total int)

	// OnRepoError receives best-effort repository lookup failures for
	// logging; the record still proceeds without metadata.
	OnRepoError func(id string, err error)

	// OnSafetyError receives classifier failures for logging. The gate
	// still fails closed; the hook lets operators tell a real rejection
	// from an endpoint outage.
	OnSafetyError func(id string, err error)
}

type ctxKey int

const recordIDKey ctxKey = iota

// WithRecordID tags ctx with the record identifier so stage wrappers can
// attribute their calls to a record.
func WithRecordID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, recordIDKey, id)
}

// RecordID returns the identifier set by WithRecordID, if any.
func RecordID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(recordIDKey).(string)
	return id, ok
}

// EnhanceAll enhances every paper and returns one Outcome per input, in
// input order. Per-record failures degrade to StatusFailed; only context
// cancellation fails the batch.
func EnhanceAll(ctx context.Context, papers []paper.Paper, stages Stages, opts Options) ([]Outcome, error) {
	// Only the model call is retried; the safety gates and the repository
	// lookup run exactly once per record per run.
	summarizeRetry := worker.NewRetrier(worker.Options{
		MaxRetries:     opts.MaxRetries,
		RequestTimeout: opts.RequestTimeout,
		RateLimitRPS:   opts.RateLimitRPS,
	})
	results, err := worker.ProcessAll(ctx, papers, func(ctx context.Context, p paper.Paper) (Outcome, error) {
		return enhanceOne(ctx, p, stages, opts, summarizeRetry)
	}, worker.Options{
		Workers: opts.Workers,
		// Each stage bounds its own attempts; no deadline on the chain.
		RequestTimeout: -1,
		OnProgress:     opts.OnProgress,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Outcome, len(results))
	for i, res := range results {
		if res.Err != nil {
			// Degrade to a placeholder-filled record so batch cardinality
			// is preserved minus explicit rejections.
			out[i] = Outcome{
				Paper:  res.Input,
				Status: StatusFailed,
				Record: paper.Enhanced{Paper: res.Input, AI: paper.Placeholder()},
				Err:    res.Err,
			}
			continue
		}
		out[i] = res.Output
	}
	return out, nil
}

// enhanceOne runs the gate → repo → summarize → gate chain for one record.
// The returned error is reserved for summarizer failures after retries are
// exhausted; rejections are normal outcomes, not errors.
func enhanceOne(ctx context.Context, p paper.Paper, stages Stages, opts Options, retry *worker.Retrier) (Outcome, error) {
	ctx = WithRecordID(ctx, p.ID)

	// Pre-filter on the raw abstract saves the model call for content that
	// could never be published.
	sensitive, err := stages.Safety.Classify(ctx, p.Abstract)
	if err != nil && opts.OnSafetyError != nil {
		opts.OnSafetyError(p.ID, err)
	}
	if sensitive {
		return Outcome{Paper: p, Status: StatusRejected, Reason: RejectedSensitive}, nil
	}

	var meta *paper.RepoMeta
	if stages.Repo != nil {
		var repoErr error
		meta, repoErr = stages.Repo.Find(ctx, p.Abstract)
		if repoErr != nil && opts.OnRepoError != nil {
			opts.OnRepoError(p.ID, repoErr)
		}
	}

	fields, err := worker.Do(ctx, retry, func(ctx context.Context) (summarize.Fields, error) {
		return stages.Summarizer.Summarize(ctx, p.Abstract)
	})
	if err != nil {
		return Outcome{}, err
	}
	summary := paper.Summary(fields).Backfill()

	sensitive, err = stages.Safety.Classify(ctx, summary.JoinedText())
	if err != nil && opts.OnSafetyError != nil {
		opts.OnSafetyError(p.ID, err)
	}
	if sensitive {
		return Outcome{Paper: p, Status: StatusRejected, Reason: RejectedSensitive}, nil
	}

	rec := paper.Enhanced{Paper: p, AI: summary}.WithRepo(meta)
	return Outcome{Paper: p, Status: StatusEnhanced, Record: rec}, nil
}

// Records filters outcomes down to the records that belong in the output
// artifact, preserving order.
func Records(outcomes []Outcome, dropFailed bool) []paper.Enhanced {
	out := make([]paper.Enhanced, 0, len(outcomes))
	for _, o := range outcomes {
		switch o.Status {
		case StatusEnhanced:
			out = append(out, o.Record)
		case StatusFailed:
			if !dropFailed {
				out = append(out, o.Record)
			}
		case StatusRejected:
			// Excluded entirely.
		}
	}
	return out
}

// Counts tallies outcomes by status.
func Counts(outcomes []Outcome) (enhanced, rejected, failed int) {
	for _, o := range outcomes {
		switch o.Status {
		case StatusEnhanced:
			enhanced++
		case StatusRejected:
			rejected++
		case StatusFailed:
			failed++
		}
	}
	return enhanced, rejected, failed
}
