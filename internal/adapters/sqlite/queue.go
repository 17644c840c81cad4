package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ryefield/souk/internal/app/domain"
	"github.com/ryefield/souk/internal/app/ports"
	"github.com/ryefield/souk/internal/db"
)

// TaskQueue is the durable work queue backed by the tasks table. Leasing
// happens in a transaction, so concurrent workers never receive the same
// task inside one visibility window; an expired lease is simply redelivered.
type TaskQueue struct {
	db *db.Database
}

// NewTaskQueue wraps an open database.
func NewTaskQueue(database *db.Database) *TaskQueue {
	return &TaskQueue{db: database}
}

func (q *TaskQueue) Enqueue(ctx context.Context, kind domain.TaskKind, entityKey int64) (domain.Task, error) {
	task := domain.Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		EntityKey: entityKey,
		CreatedAt: time.Now(),
	}
	if err := q.db.InsertTask(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("enqueue %s task: %w", kind, mapErr(err))
	}
	return task, nil
}

func (q *TaskQueue) Lease(ctx context.Context, visibility time.Duration) (*domain.Task, error) {
	task, err := q.db.LeaseTask(ctx, visibility)
	if err != nil {
		return nil, fmt.Errorf("lease task: %w", mapErr(err))
	}
	return task, nil
}

func (q *TaskQueue) Complete(ctx context.Context, taskID string) error {
	if err := q.db.CompleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("complete task %s: %w", taskID, mapErr(err))
	}
	return nil
}

func (q *TaskQueue) Release(ctx context.Context, taskID string) error {
	if err := q.db.ReleaseTask(ctx, taskID); err != nil {
		return fmt.Errorf("release task %s: %w", taskID, mapErr(err))
	}
	return nil
}

func (q *TaskQueue) Kill(ctx context.Context, taskID string, reason string) error {
	if err := q.db.KillTask(ctx, taskID, reason); err != nil {
		return fmt.Errorf("kill task %s: %w", taskID, mapErr(err))
	}
	return nil
}

var _ ports.TaskQueue = (*TaskQueue)(nil)
