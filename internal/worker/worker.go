// Package worker drains the task queue and routes each task to its
// pipeline stage. Tasks either complete, fail back into the queue for
// redelivery, or dead-letter when they are permanent failures or exhaust
// their attempts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
	"github.com/ryefield/souk/internal/app/services"
	"github.com/ryefield/souk/internal/observability"
)

const (
	defaultVisibility  = 2 * time.Minute
	defaultIdleDelay   = time.Second
	defaultMaxAttempts = 5
)

// Worker polls the queue and executes tasks.
type Worker struct {
	queue             ports.TaskQueue
	dispatcher        *services.Dispatcher
	demandValidator   *services.DemandValidator
	proposalValidator *services.ProposalValidator
	visibility        time.Duration
	idleDelay         time.Duration
	maxAttempts       int
	log               *slog.Logger
}

// Option adjusts a Worker.
type Option func(*Worker)

// WithVisibility sets the lease window granted per task.
func WithVisibility(visibility time.Duration) Option {
	return func(w *Worker) { w.visibility = visibility }
}

// WithIdleDelay sets the pause between polls of a drained queue.
func WithIdleDelay(delay time.Duration) Option {
	return func(w *Worker) { w.idleDelay = delay }
}

// WithMaxAttempts sets how many deliveries a task gets before it
// dead-letters.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) { w.maxAttempts = attempts }
}

// New constructs a worker over the pipeline stages.
func New(
	queue ports.TaskQueue,
	dispatcher *services.Dispatcher,
	demandValidator *services.DemandValidator,
	proposalValidator *services.ProposalValidator,
	log *slog.Logger,
	opts ...Option,
) *Worker {
	w := &Worker{
		queue:             queue,
		dispatcher:        dispatcher,
		demandValidator:   demandValidator,
		proposalValidator: proposalValidator,
		visibility:        defaultVisibility,
		idleDelay:         defaultIdleDelay,
		maxAttempts:       defaultMaxAttempts,
		log:               log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.log.ErrorContext(ctx, "queue poll failed", slog.Any("error", err))
		}
		if processed && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.idleDelay):
		}
	}
}

// RunOnce leases and executes at most one task, reporting whether there
// was one.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.queue.Lease(ctx, w.visibility)
	if err != nil {
		return false, fmt.Errorf("lease task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	ctx = observability.WithPipelineContext(ctx, "", task.ID)
	if err := w.execute(ctx, *task); err != nil {
		w.settle(ctx, *task, err)
		return true, nil
	}
	if err := w.queue.Complete(ctx, task.ID); err != nil {
		return true, fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, task domain.Task) error {
	w.log.InfoContext(ctx, "task leased",
		slog.String("task_id", task.ID),
		slog.String("kind", string(task.Kind)),
		slog.Int64("entity_key", task.EntityKey),
		slog.Int("attempts", task.Attempts))

	switch task.Kind {
	case domain.TaskDispatchCommand:
		return w.dispatcher.Dispatch(ctx, task.EntityKey)
	case domain.TaskValidateDemand:
		return w.demandValidator.Validate(ctx, task.EntityKey)
	case domain.TaskValidateOpenProposal:
		return w.proposalValidator.Validate(ctx, task.EntityKey)
	case domain.TaskProcessPublishedDemand, domain.TaskProcessPublishedProposal:
		// Produced for downstream matching, which runs outside this
		// worker. Acknowledge so the queue stays clean.
		w.log.InfoContext(ctx, "published entity handed downstream",
			slog.String("kind", string(task.Kind)),
			slog.Int64("entity_key", task.EntityKey))
		return nil
	}
	return fmt.Errorf("%w: task kind %q", services.ErrUnsupportedAction, task.Kind)
}

// settle decides what a failed task becomes: dead on permanent errors or
// exhausted attempts, ready again otherwise.
func (w *Worker) settle(ctx context.Context, task domain.Task, taskErr error) {
	if errors.Is(taskErr, services.ErrUnsupportedAction) {
		w.log.WarnContext(ctx, "task dead-lettered",
			slog.String("task_id", task.ID), slog.Any("error", taskErr))
		if err := w.queue.Kill(ctx, task.ID, taskErr.Error()); err != nil {
			w.log.ErrorContext(ctx, "kill failed", slog.String("task_id", task.ID), slog.Any("error", err))
		}
		return
	}

	if task.Attempts >= w.maxAttempts {
		w.log.ErrorContext(ctx, "task exhausted its attempts",
			slog.String("task_id", task.ID),
			slog.Int("attempts", task.Attempts),
			slog.Any("error", taskErr))
		if err := w.queue.Kill(ctx, task.ID, fmt.Sprintf("exhausted %d attempts: %v", task.Attempts, taskErr)); err != nil {
			w.log.ErrorContext(ctx, "kill failed", slog.String("task_id", task.ID), slog.Any("error", err))
		}
		return
	}

	w.log.WarnContext(ctx, "task failed, releasing for retry",
		slog.String("task_id", task.ID),
		slog.Int("attempts", task.Attempts),
		slog.Any("error", taskErr))
	if err := w.queue.Release(ctx, task.ID); err != nil {
		w.log.ErrorContext(ctx, "release failed", slog.String("task_id", task.ID), slog.Any("error", err))
	}
}
