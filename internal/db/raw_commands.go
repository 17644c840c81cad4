package db

import (
	"context"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
)

const createRawCommandQuery = `-- name: CreateRawCommand :one
INSERT INTO raw_commands (source, emitter_id, message_id, command, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id`

// CreateRawCommand appends one immutable inbound record. The unique index on
// (source, message_id) surfaces redelivered items as a constraint error.
func (c *Database) CreateRawCommand(ctx context.Context, command domain.RawCommand) (int64, error) {
	return createRawCommand(ctx, c.dbtx, command)
}

func createRawCommand(ctx context.Context, dbtx DBTX, command domain.RawCommand) (int64, error) {
	createdAt := command.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var id int64
	err := dbtx.QueryRowContext(ctx, createRawCommandQuery,
		string(command.Source), command.EmitterID, command.MessageID, command.Command, formatTime(createdAt),
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// CreateRawCommandWithTask inserts the raw command and its dispatch task in
// one transaction. Either both rows commit or neither does; a duplicate
// message rolls the task back along with the record.
func (c *Database) CreateRawCommandWithTask(ctx context.Context, command domain.RawCommand, task domain.Task) (int64, error) {
	var key int64
	err := c.withTx(ctx, func(tx DBTX) error {
		var err error
		key, err = createRawCommand(ctx, tx, command)
		if err != nil {
			return err
		}
		task.EntityKey = key
		return insertTask(ctx, tx, task)
	})
	if err != nil {
		return 0, err
	}
	return key, nil
}

const getRawCommandQuery = `-- name: GetRawCommand :one
SELECT id, source, emitter_id, message_id, command, created_at
FROM raw_commands
WHERE id = ?`

// GetRawCommand fetches one recorded inbound message by key.
func (c *Database) GetRawCommand(ctx context.Context, key int64) (domain.RawCommand, error) {
	var (
		out       domain.RawCommand
		source    string
		createdAt string
	)
	err := c.dbtx.QueryRowContext(ctx, getRawCommandQuery, key).Scan(
		&out.Key, &source, &out.EmitterID, &out.MessageID, &out.Command, &createdAt,
	)
	if err != nil {
		return domain.RawCommand{}, err
	}
	if out.Source, err = domain.ParseSource(source); err != nil {
		return domain.RawCommand{}, err
	}
	if out.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.RawCommand{}, err
	}
	return out, nil
}
