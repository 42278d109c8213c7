package pipeline_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arxivdaily/enhancer/internal/mocksvc"
	"github.com/arxivdaily/enhancer/internal/paper"
	"github.com/arxivdaily/enhancer/internal/pipeline"
	"github.com/arxivdaily/enhancer/internal/repolink"
	"github.com/arxivdaily/enhancer/internal/safety"
	"github.com/arxivdaily/enhancer/internal/summarize"
	"github.com/arxivdaily/enhancer/internal/worker"
)

type stubSummarizer func(ctx context.Context, abstract string) (summarize.Fields, error)

func (f stubSummarizer) Summarize(ctx context.Context, abstract string) (summarize.Fields, error) {
	return f(ctx, abstract)
}

func (stubSummarizer) Model() string { return "stub" }

func fullFields() summarize.Fields {
	return summarize.Fields{TLDR: "t", Motivation: "mo", Method: "me", Result: "r", Conclusion: "c"}
}

func mockStages(t *testing.T, srv *mocksvc.Server, summarizer summarize.Summarizer) pipeline.Stages {
	t.Helper()
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return pipeline.Stages{
		Safety:     safety.New(safety.Config{Endpoint: hs.URL + "/v1/classify"}),
		Repo:       repolink.New(repolink.Config{BaseURL: hs.URL}),
		Summarizer: summarizer,
	}
}

func TestEnhanceAll_SingleRecord(t *testing.T) {
	t.Parallel()

	stages := mockStages(t, mocksvc.New(), stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		return fullFields(), nil
	}))

	papers := []paper.Paper{{ID: "1", Title: "Cats", Abstract: "cat pictures"}}
	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != pipeline.StatusEnhanced {
		t.Fatalf("unexpected outcomes: %#v", outcomes)
	}
	rec := outcomes[0].Record
	if rec.ID != "1" || !rec.AI.Complete() || rec.AI.TLDR != "t" {
		t.Fatalf("unexpected record: %#v", rec)
	}
}

func TestEnhanceAll_SensitiveAbstractIsRejected(t *testing.T) {
	t.Parallel()

	srv := mocksvc.New()
	srv.SetSensitiveTexts("forbidden")

	called := int32(0)
	stages := mockStages(t, srv, stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		atomic.AddInt32(&called, 1)
		return fullFields(), nil
	}))

	papers := []paper.Paper{
		{ID: "1", Abstract: "benign"},
		{ID: "2", Abstract: "forbidden topic"},
		{ID: "3", Abstract: "benign too"},
	}
	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, rejected, _ := pipeline.Counts(outcomes)
	if rejected != 1 {
		t.Fatalf("expected 1 rejection, got %d", rejected)
	}
	if outcomes[1].Status != pipeline.StatusRejected || outcomes[1].Reason != pipeline.RejectedSensitive {
		t.Fatalf("unexpected outcome[1]: %#v", outcomes[1])
	}

	recs := pipeline.Records(outcomes, false)
	if len(recs) != len(papers)-rejected {
		t.Fatalf("output deficit %d != rejections %d", len(papers)-len(recs), rejected)
	}
	// The pre-filter must save the model call for rejected records.
	if atomic.LoadInt32(&called) != 2 {
		t.Fatalf("expected 2 summarizer calls, got %d", called)
	}
}

func TestEnhanceAll_SensitiveSummaryIsRejected(t *testing.T) {
	t.Parallel()

	srv := mocksvc.New()
	srv.SetSensitiveTexts("leaked")

	stages := mockStages(t, srv, stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		f := fullFields()
		f.Result = "leaked details"
		return f, nil
	}))

	outcomes, err := pipeline.EnhanceAll(context.Background(), []paper.Paper{{ID: "1", Abstract: "benign"}}, stages, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].Status != pipeline.StatusRejected {
		t.Fatalf("post-filter should reject, got %#v", outcomes[0])
	}
	if recs := pipeline.Records(outcomes, false); len(recs) != 0 {
		t.Fatalf("rejected record must not be written, got %d", len(recs))
	}
}

func TestEnhanceAll_AlwaysSensitiveYieldsEmptyOutput(t *testing.T) {
	t.Parallel()

	srv := mocksvc.New()
	srv.SetAlwaysSensitive(true)

	stages := mockStages(t, srv, stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		return fullFields(), nil
	}))

	papers := []paper.Paper{{ID: "1", Abstract: "a"}, {ID: "2", Abstract: "b"}, {ID: "3", Abstract: "c"}}
	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if recs := pipeline.Records(outcomes, false); len(recs) != 0 {
		t.Fatalf("expected empty output, got %d records", len(recs))
	}
}

func TestEnhanceAll_FailureDegradesToPlaceholder(t *testing.T) {
	t.Parallel()

	stages := mockStages(t, mocksvc.New(), stubSummarizer(func(_ context.Context, abstract string) (summarize.Fields, error) {
		if strings.Contains(abstract, "second") {
			return summarize.Fields{}, errors.New("provider exploded")
		}
		return fullFields(), nil
	}))

	papers := []paper.Paper{
		{ID: "1", Abstract: "first paper"},
		{ID: "2", Abstract: "second paper"},
	}
	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	recs := pipeline.Records(outcomes, false)
	if len(recs) != 2 {
		t.Fatalf("expected stable cardinality 2, got %d", len(recs))
	}
	if recs[1].AI != paper.Placeholder() {
		t.Fatalf("failed record should carry full placeholder summary: %#v", recs[1].AI)
	}
	if outcomes[1].Status != pipeline.StatusFailed || outcomes[1].Err == nil {
		t.Fatalf("unexpected outcome[1]: %#v", outcomes[1])
	}

	if drop := pipeline.Records(outcomes, true); len(drop) != 1 || drop[0].ID != "1" {
		t.Fatalf("DropFailed should exclude placeholder records: %#v", drop)
	}
}

func TestEnhanceAll_AllFailuresAllPlaceholders(t *testing.T) {
	t.Parallel()

	stages := mockStages(t, mocksvc.New(), stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		return summarize.Fields{}, errors.New("always down")
	}))

	papers := []paper.Paper{{ID: "1", Abstract: "a"}, {ID: "2", Abstract: "b"}}
	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, rec := range pipeline.Records(outcomes, false) {
		if rec.AI != paper.Placeholder() {
			t.Fatalf("expected placeholder summary for %s: %#v", rec.ID, rec.AI)
		}
	}
}

func TestEnhanceAll_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	stages := mockStages(t, mocksvc.New(), stubSummarizer(func(_ context.Context, abstract string) (summarize.Fields, error) {
		// Make early items the slowest so completion order inverts.
		if strings.HasSuffix(abstract, "slow") {
			time.Sleep(30 * time.Millisecond)
		}
		return fullFields(), nil
	}))

	papers := make([]paper.Paper, 12)
	for i := range papers {
		pace := "fast"
		if i < 6 {
			pace = "slow"
		}
		papers[i] = paper.Paper{ID: string(rune('a' + i)), Abstract: "paper " + pace}
	}

	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{Workers: 6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, o := range outcomes {
		if o.Paper.ID != papers[i].ID {
			t.Fatalf("outcome %d has id %q, want %q", i, o.Paper.ID, papers[i].ID)
		}
	}
}

func TestEnhanceAll_AttachesRepositoryMetadata(t *testing.T) {
	t.Parallel()

	srv := mocksvc.New()
	srv.SetRepoStars("acme/widget", 42)

	stages := mockStages(t, srv, stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		return fullFields(), nil
	}))

	papers := []paper.Paper{{ID: "1", Abstract: "Code at https://github.com/acme/widget for reproduction."}}
	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := outcomes[0].Record
	if !strings.HasSuffix(rec.CodeURL, "acme/widget") || rec.CodeStars == nil || *rec.CodeStars != 42 {
		t.Fatalf("unexpected repo metadata: %#v", rec)
	}
}

func TestEnhanceAll_RetriesOnlyTheModelCall(t *testing.T) {
	t.Parallel()

	srv := mocksvc.New()
	srv.SetRepoStars("acme/widget", 42)

	// Fail the first model call transiently so the record needs a retry.
	var calls int32
	stages := mockStages(t, srv, stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return summarize.Fields{}, worker.Transient(errors.New("rate limited"))
		}
		return fullFields(), nil
	}))

	papers := []paper.Paper{{ID: "1", Abstract: "Code at https://github.com/acme/widget here."}}
	outcomes, err := pipeline.EnhanceAll(context.Background(), papers, stages, pipeline.Options{MaxRetries: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].Status != pipeline.StatusEnhanced {
		t.Fatalf("retry should have recovered the record: %#v", outcomes[0])
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected 2 model calls, got %d", got)
	}
	// The repository lookup and the safety gates run once per record per
	// run; a model retry must not re-issue them.
	if got := srv.CallCount("/repos/acme/widget"); got != 1 {
		t.Fatalf("expected 1 repo lookup, got %d", got)
	}
	if got := srv.CallCount("/v1/classify"); got != 2 {
		t.Fatalf("expected 2 classifications (pre+post), got %d", got)
	}
}

func TestEnhanceAll_RepoLookupFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	// No repo registered: lookup 404s but the record still enhances.
	var repoErrs int32
	stages := mockStages(t, mocksvc.New(), stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		return fullFields(), nil
	}))

	outcomes, err := pipeline.EnhanceAll(context.Background(),
		[]paper.Paper{{ID: "1", Abstract: "see https://github.com/acme/gone"}},
		stages,
		pipeline.Options{OnRepoError: func(string, error) { atomic.AddInt32(&repoErrs, 1) }},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].Status != pipeline.StatusEnhanced {
		t.Fatalf("repo failure must not fail the record: %#v", outcomes[0])
	}
	if outcomes[0].Record.CodeURL != "" {
		t.Fatalf("expected no metadata, got %#v", outcomes[0].Record)
	}
	if atomic.LoadInt32(&repoErrs) != 1 {
		t.Fatalf("expected 1 reported repo error, got %d", repoErrs)
	}
}

func TestEnhanceAll_ClassifierOutageFailsClosed(t *testing.T) {
	t.Parallel()

	srv := mocksvc.New()
	srv.SetClassifyStatus(503)

	stages := mockStages(t, srv, stubSummarizer(func(_ context.Context, _ string) (summarize.Fields, error) {
		return fullFields(), nil
	}))

	var safetyErrs int32
	outcomes, err := pipeline.EnhanceAll(context.Background(), []paper.Paper{{ID: "1", Abstract: "text"}}, stages, pipeline.Options{
		OnSafetyError: func(id string, err error) {
			if id != "1" || err == nil {
				t.Errorf("unexpected safety error report: id=%q err=%v", id, err)
			}
			atomic.AddInt32(&safetyErrs, 1)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcomes[0].Status != pipeline.StatusRejected {
		t.Fatalf("classifier outage must reject, got %#v", outcomes[0])
	}
	// Operators must be able to tell an outage from a real rejection.
	if atomic.LoadInt32(&safetyErrs) != 1 {
		t.Fatalf("expected 1 reported classifier error, got %d", safetyErrs)
	}
}
