// Package runner bounds how many triage cases run at once.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/pkg/logging"
	"github.com/Mangalasridharan/MaTriX-AI-Maternal-Triage-Escalation-Intelligence/triage"
)

// DefaultMaxConcurrency is used when New is given a non-positive limit.
const DefaultMaxConcurrency = 10

// CaseEngine runs a single case. *triage.Engine satisfies it.
type CaseEngine interface {
	Run(ctx context.Context, patient triage.PatientData) (*triage.CaseState, error)
}

// Runner executes cases through an engine, at most maxConcurrency at a time.
type Runner struct {
	engine         CaseEngine
	maxConcurrency int
	semaphore      chan struct{}
	logger         *slog.Logger
}

// New creates a new runner
func New(engine CaseEngine, maxConcurrency int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Runner{
		engine:         engine,
		maxConcurrency: maxConcurrency,
		semaphore:      make(chan struct{}, maxConcurrency),
		logger:         logging.WithComponent("runner"),
	}
}

// MaxConcurrency reports the concurrency limit.
func (r *Runner) MaxConcurrency() int { return r.maxConcurrency }

// Run executes one case once a slot is free.
func (r *Runner) Run(ctx context.Context, patient triage.PatientData) (*triage.CaseState, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return r.engine.Run(ctx, patient)
}

// Task is one case in a batch.
type Task struct {
	ID      string
	Patient triage.PatientData
}

// Result pairs a task with its outcome.
type Result struct {
	TaskID string
	Case   *triage.CaseState
	Error  error
}

// RunBatch runs every task concurrently and returns results in task order.
// One case failing, or panicking, does not stop the others.
func (r *Runner) RunBatch(ctx context.Context, tasks []*Task) []*Result {
	results := make([]*Result, len(tasks))
	var g errgroup.Group

	for i, task := range tasks {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("case panicked", "task_id", task.ID, "panic", rec)
					results[i] = &Result{
						TaskID: task.ID,
						Error:  fmt.Errorf("panic in task %s: %v", task.ID, rec),
					}
				}
			}()

			s, err := r.Run(ctx, task.Patient)
			if err != nil {
				r.logger.Warn("case failed", "task_id", task.ID, "error", err)
			}
			results[i] = &Result{TaskID: task.ID, Case: s, Error: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
