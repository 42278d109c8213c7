// Package worker runs independent per-item tasks across a bounded pool and
// hands results back addressed by input index, so callers can rebuild the
// original order regardless of completion order.
package worker

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Options struct {
	Workers    int
	MaxRetries int

	// RequestTimeout bounds each attempt. Zero selects the 30s default;
	// negative disables the per-attempt deadline.
	RequestTimeout time.Duration

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64

	// OnProgress, if set, is invoked after each item resolves with
	// (completed, total). Calls are serialized.
	OnProgress func(completed, total int)
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Input  In
	Output Out
	Err    error
}

// TransientError marks an error as retryable. The pool retries transient
// failures with backoff rather than surfacing them on the first attempt.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Transient wraps err as retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 30 * time.Second
	}
	if o.RequestTimeout < 0 {
		o.RequestTimeout = 0
	}
	if o.BackoffInitial <= 0 {
		o.BackoffInitial = 200 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Second
	}
	if o.BackoffJitterFrac <= 0 {
		o.BackoffJitterFrac = 0.2
	}
	return o
}

// ProcessAll runs fn over every item and returns one Result per input, in
// input order. Per-item errors are recorded in the Result, never returned
// from ProcessAll; the only error cases are context cancellation.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	retrier := NewRetrier(opts)
	opts = retrier.opts

	out := make([]Result[In, Out], len(items))

	type job struct {
		idx int
		in  In
	}
	type completion struct {
		idx int
		res Result[In, Out]
	}

	jobs := make(chan job)
	done := make(chan completion, opts.Workers)

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				res := runOne(ctx, j.in, fn, retrier)
				select {
				case done <- completion{idx: j.idx, res: res}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	completed := 0
	for item := range done {
		out[item.idx] = item.res
		completed++
		if opts.OnProgress != nil {
			opts.OnProgress(completed, len(items))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func runOne[In any, Out any](
	ctx context.Context,
	item In,
	fn func(context.Context, In) (Out, error),
	retrier *Retrier,
) Result[In, Out] {
	out, err := Do(ctx, retrier, func(ctx context.Context) (Out, error) {
		return fn(ctx, item)
	})
	return Result[In, Out]{Input: item, Output: out, Err: err}
}

// Retrier applies a per-attempt rate limit, deadline, and transient-error
// backoff to a single call site. It is safe for concurrent use; all calls
// share one rate limiter.
type Retrier struct {
	limiter *rate.Limiter
	opts    Options
}

func NewRetrier(opts Options) *Retrier {
	opts = opts.withDefaults()
	r := &Retrier{opts: opts}
	if opts.RateLimitRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return r
}

// Do runs fn under r's retry policy and returns the last attempt's result.
func Do[Out any](ctx context.Context, r *Retrier, fn func(context.Context) (Out, error)) (Out, error) {
	var lastOut Out
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return lastOut, err
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return lastOut, err
			}
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if r.opts.RequestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		}
		result, err := fn(reqCtx)
		lastOut = result
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return lastOut, ctx.Err()
		}
		if !IsTransient(err) || attempt >= r.opts.MaxRetries {
			return lastOut, err
		}

		sleep := backoffSleep(r.opts.BackoffInitial, r.opts.BackoffMax, r.opts.BackoffJitterFrac, attempt)
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastOut, ctx.Err()
		}
	}
}

// IsTransient reports whether err should be retried: an explicit
// TransientError, a request deadline, or a temporary network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
