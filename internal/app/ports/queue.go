package ports

import (
	"context"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
)

// TaskEnqueuer is the producer half of the work queue. Pipeline stages only
// ever need this side.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, kind domain.TaskKind, entityKey int64) (domain.Task, error)
}

// TaskQueue is the durable at-least-once work queue. Lease hands out a task
// invisible to other workers for the visibility window; a task that is
// neither completed nor killed before the window closes is redelivered with
// its attempt counter bumped.
type TaskQueue interface {
	TaskEnqueuer

	// Lease returns the next ready task or nil when the queue is drained.
	Lease(ctx context.Context, visibility time.Duration) (*domain.Task, error)
	// Complete removes a finished task.
	Complete(ctx context.Context, taskID string) error
	// Release returns a leased task for immediate redelivery after a
	// transient failure.
	Release(ctx context.Context, taskID string) error
	// Kill dead-letters a task that must not be retried.
	Kill(ctx context.Context, taskID string, reason string) error
}
