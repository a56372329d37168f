// Package reconciler runs the background maintenance tasks that keep the
// three storage tiers consistent. Each task owns its own ticker; there is no
// shared scheduler state, so tasks never block each other.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/securebox/internal/logging"
)

// Task is one periodic maintenance job. Run must be idempotent: a failed
// execution is retried, and the next tick repeats the work regardless.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a set of tasks until its context is cancelled.
type Runner struct {
	tasks []Task
	log   logging.Logger

	// maxRetries bounds the retry attempts after the initial failure.
	maxRetries   uint64
	retryBackoff time.Duration
}

func NewRunner(log logging.Logger, tasks ...Task) *Runner {
	return &Runner{
		tasks:        tasks,
		log:          log.With("component", "reconciler"),
		maxRetries:   2,
		retryBackoff: time.Second,
	}
}

// Run starts one goroutine per task and blocks until ctx is cancelled and
// every in-flight execution has returned.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, task := range r.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			r.loop(ctx, task)
		}(task)
	}
	wg.Wait()
}

func (r *Runner) loop(ctx context.Context, task Task) {
	r.log.Info(ctx, "task scheduled", "task", task.Name, "interval", task.Interval)

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	// First pass right away so a restart does not postpone overdue
	// cleanup by a full interval.
	r.execute(ctx, task)

	for {
		select {
		case <-ctx.Done():
			r.log.Info(ctx, "task stopped", "task", task.Name)
			return
		case <-ticker.C:
			r.execute(ctx, task)
		}
	}
}

// execute runs the task with bounded exponential backoff. Exhausting the
// retries is logged as degraded and deferred to the next tick, never fatal.
func (r *Runner) execute(ctx context.Context, task Task) {
	start := time.Now()

	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.retryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := task.Run(ctx); err != nil {
			r.log.Warn(ctx, "task attempt failed", "task", task.Name, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	runDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		errorsTotal.WithLabelValues(task.Name).Inc()
		r.log.Error(ctx, "task degraded, waiting for next tick", "task", task.Name, "error", err)
		return
	}
	runsTotal.WithLabelValues(task.Name).Inc()
}
