package worker_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/arxivdaily/enhancer/internal/worker"
)

func TestProcessAll_RetriesTransient(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0
	failUntil := 2

	fn := func(_ context.Context, _ string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= failUntil {
			return "", worker.Transient(errors.New("try again"))
		}
		return "ok", nil
	}

	out, err := worker.ProcessAll(context.Background(), []string{"2508.01234"}, fn, worker.Options{
		Workers:           1,
		MaxRetries:        3,
		RequestTimeout:    1 * time.Second,
		BackoffInitial:    1 * time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
		BackoffJitterFrac: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	if out[0].Err != nil || out[0].Output != "ok" {
		t.Fatalf("unexpected output: %#v", out[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestProcessAll_DoesNotRetryPermanent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := 0

	fn := func(_ context.Context, _ string) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return "", errors.New("permanent")
	}

	out, err := worker.ProcessAll(context.Background(), []string{"2508.01234"}, fn, worker.Options{
		Workers:           1,
		MaxRetries:        10,
		BackoffInitial:    1 * time.Millisecond,
		BackoffMax:        1 * time.Millisecond,
		BackoffJitterFrac: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 output, got %d", len(out))
	}
	if out[0].Err == nil || out[0].Err.Error() != "permanent" {
		t.Fatalf("unexpected output: %#v", out[0])
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestProcessAll_PreservesInputOrder(t *testing.T) {
	t.Parallel()

	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	fn := func(_ context.Context, n int) (string, error) {
		// Later items finish earlier so completion order inverts input order.
		time.Sleep(time.Duration(50-n) * time.Millisecond / 10)
		return strconv.Itoa(n), nil
	}

	out, err := worker.ProcessAll(context.Background(), items, fn, worker.Options{
		Workers: 8,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(items) {
		t.Fatalf("expected %d outputs, got %d", len(items), len(out))
	}
	for i, res := range out {
		if res.Err != nil {
			t.Fatalf("item %d: unexpected error: %v", i, res.Err)
		}
		if res.Output != strconv.Itoa(i) {
			t.Fatalf("item %d: output %q out of order", i, res.Output)
		}
	}
}

func TestProcessAll_ReportsProgress(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var seen []int

	_, err := worker.ProcessAll(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, s string) (string, error) {
		return s, nil
	}, worker.Options{
		Workers: 2,
		OnProgress: func(completed, total int) {
			mu.Lock()
			defer mu.Unlock()
			if total != 3 {
				t.Errorf("total = %d, want 3", total)
			}
			seen = append(seen, completed)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 progress calls, got %d", len(seen))
	}
	for i, c := range seen {
		if c != i+1 {
			t.Fatalf("progress calls not monotonic: %v", seen)
		}
	}
}

func TestProcessAll_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	items := make([]int, 100)
	fn := func(ctx context.Context, _ int) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := worker.ProcessAll(ctx, items, fn, worker.Options{Workers: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDo_RetriesTransientAtTheCallSite(t *testing.T) {
	t.Parallel()

	r := worker.NewRetrier(worker.Options{
		MaxRetries:        2,
		RequestTimeout:    1 * time.Second,
		BackoffInitial:    1 * time.Millisecond,
		BackoffMax:        2 * time.Millisecond,
		BackoffJitterFrac: 0,
	})

	calls := 0
	out, err := worker.Do(context.Background(), r, func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", worker.Transient(errors.New("try again"))
		}
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("unexpected result: %q, %v", out, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_NegativeRequestTimeoutDisablesDeadline(t *testing.T) {
	t.Parallel()

	r := worker.NewRetrier(worker.Options{RequestTimeout: -1})
	_, err := worker.Do(context.Background(), r, func(ctx context.Context) (struct{}, error) {
		if _, ok := ctx.Deadline(); ok {
			t.Error("expected no per-attempt deadline")
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("permanent"), false},
		{worker.Transient(errors.New("x")), true},
		{fmt.Errorf("wrapped: %w", worker.Transient(errors.New("x"))), true},
		{context.DeadlineExceeded, true},
	}
	for _, tc := range cases {
		if got := worker.IsTransient(tc.err); got != tc.want {
			t.Fatalf("IsTransient(%v) = %t, want %t", tc.err, got, tc.want)
		}
	}
}
