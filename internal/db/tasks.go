package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
)

const insertTaskQuery = `-- name: InsertTask :exec
INSERT INTO tasks (id, kind, entity_key, status, attempts, visible_at, created_at)
VALUES (?, ?, ?, 'ready', 0, ?, ?)`

// InsertTask makes a task visible immediately.
func (c *Database) InsertTask(ctx context.Context, task domain.Task) error {
	return insertTask(ctx, c.dbtx, task)
}

func insertTask(ctx context.Context, dbtx DBTX, task domain.Task) error {
	now := time.Now()
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := dbtx.ExecContext(ctx, insertTaskQuery,
		task.ID, string(task.Kind), task.EntityKey, formatTime(now), formatTime(createdAt))
	return err
}

const nextReadyTaskQuery = `-- name: NextReadyTask :one
SELECT id, kind, entity_key, attempts, created_at
FROM tasks
WHERE status IN ('ready', 'leased') AND visible_at <= ?
ORDER BY created_at, id
LIMIT 1`

const leaseTaskQuery = `-- name: LeaseTask :exec
UPDATE tasks
SET status = 'leased', attempts = attempts + 1, visible_at = ?
WHERE id = ?`

// LeaseTask hands out the oldest ready task and hides it for the visibility
// window. A leased task whose window expired counts as ready again, which is
// what gives the queue its at-least-once redelivery.
func (c *Database) LeaseTask(ctx context.Context, visibility time.Duration) (*domain.Task, error) {
	var task *domain.Task
	err := c.withTx(ctx, func(tx DBTX) error {
		now := time.Now()
		var (
			out       domain.Task
			kind      string
			createdAt string
		)
		err := tx.QueryRowContext(ctx, nextReadyTaskQuery, formatTime(now)).Scan(
			&out.ID, &kind, &out.EntityKey, &out.Attempts, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if out.Kind, err = domain.ParseTaskKind(kind); err != nil {
			return err
		}
		if out.CreatedAt, err = parseTime(createdAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, leaseTaskQuery, formatTime(now.Add(visibility)), out.ID); err != nil {
			return err
		}
		out.Attempts++
		task = &out
		return nil
	})
	return task, err
}

const completeTaskQuery = `-- name: CompleteTask :exec
DELETE FROM tasks
WHERE id = ?`

// CompleteTask removes a finished task.
func (c *Database) CompleteTask(ctx context.Context, taskID string) error {
	_, err := c.dbtx.ExecContext(ctx, completeTaskQuery, taskID)
	return err
}

const releaseTaskQuery = `-- name: ReleaseTask :exec
UPDATE tasks
SET status = 'ready', visible_at = ?
WHERE id = ? AND status = 'leased'`

// ReleaseTask returns a leased task for immediate redelivery.
func (c *Database) ReleaseTask(ctx context.Context, taskID string) error {
	_, err := c.dbtx.ExecContext(ctx, releaseTaskQuery, formatTime(time.Now()), taskID)
	return err
}

const killTaskQuery = `-- name: KillTask :exec
UPDATE tasks
SET status = 'dead', dead_reason = ?
WHERE id = ?`

// KillTask dead-letters a task; the row stays around for inspection.
func (c *Database) KillTask(ctx context.Context, taskID string, reason string) error {
	_, err := c.dbtx.ExecContext(ctx, killTaskQuery, reason, taskID)
	return err
}

const countDeadTasksQuery = `-- name: CountDeadTasks :one
SELECT COUNT(*)
FROM tasks
WHERE status = 'dead'`

// CountDeadTasks reports the dead-letter backlog, exposed on the ops
// endpoint.
func (c *Database) CountDeadTasks(ctx context.Context) (int64, error) {
	var count int64
	err := c.dbtx.QueryRowContext(ctx, countDeadTasksQuery).Scan(&count)
	return count, err
}
