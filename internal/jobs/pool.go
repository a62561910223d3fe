package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pvetax/internal/metrics"
)

// ErrPanic wraps a panic recovered from a unit of work.
var ErrPanic = errors.New("unit of work panicked")

type skipError struct{ err error }

func (e skipError) Error() string { return e.err.Error() }
func (e skipError) Unwrap() error { return e.err }

// Skip marks err as an expected reason to leave a unit untouched. Skipped
// units are counted apart from failures.
func Skip(err error) error {
	if err == nil {
		return nil
	}
	return skipError{err: err}
}

func IsSkip(err error) bool {
	var s skipError
	return errors.As(err, &s)
}

type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (s Summary) String() string {
	return fmt.Sprintf("total=%d succeeded=%d failed=%d skipped=%d", s.Total, s.Succeeded, s.Failed, s.Skipped)
}

// Pool runs independent units of work with bounded concurrency. A failing or
// panicking unit never aborts its siblings.
type Pool struct {
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

func NewPool(workers int, timeout time.Duration, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{workers: workers, timeout: timeout, logger: logger}
}

// Run calls fn for every index in [0, n). When the pool has a timeout each
// unit gets its own deadline, so a slow unit never starves the ones after it.
// Units not started before ctx ends count as failed.
func (p *Pool) Run(ctx context.Context, job string, n int, fn func(ctx context.Context, i int) error) Summary {
	start := time.Now()
	defer func() {
		metrics.JobDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	}()

	summary := Summary{Total: n}
	var mu sync.Mutex
	record := func(i int, err error) {
		outcome := "succeeded"
		mu.Lock()
		switch {
		case err == nil:
			summary.Succeeded++
		case IsSkip(err):
			summary.Skipped++
			outcome = "skipped"
		default:
			summary.Failed++
			outcome = "failed"
		}
		mu.Unlock()
		metrics.JobUnits.WithLabelValues(job, outcome).Inc()
		switch outcome {
		case "failed":
			p.logger.Error("job unit failed", "job", job, "unit", i, "error", err)
		case "skipped":
			p.logger.Info("job unit skipped", "job", job, "unit", i, "reason", err)
		}
	}

	indexes := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.workers && w < n; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				record(i, p.runOne(ctx, i, fn))
			}
		}()
	}

	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			record(i, ctx.Err())
			continue
		}
		select {
		case indexes <- i:
		case <-ctx.Done():
			record(i, ctx.Err())
		}
	}
	close(indexes)
	wg.Wait()

	p.logger.Info("job finished", "job", job, "total", summary.Total, "succeeded", summary.Succeeded,
		"failed", summary.Failed, "skipped", summary.Skipped, "duration", time.Since(start).String())
	return summary
}

func (p *Pool) runOne(ctx context.Context, i int, fn func(ctx context.Context, i int) error) (err error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx, i)
}
