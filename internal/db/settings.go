package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ryefield/souk/internal/app/domain"
)

const getWatermarkQuery = `-- name: GetWatermark :one
SELECT last_processed_message_id
FROM settings
WHERE source = ?`

// GetWatermark returns the highest message identifier already consumed for
// the source; zero when the source has never been ingested.
func (c *Database) GetWatermark(ctx context.Context, source domain.Source) (int64, error) {
	var watermark int64
	err := c.dbtx.QueryRowContext(ctx, getWatermarkQuery, string(source)).Scan(&watermark)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return watermark, nil
}

const advanceWatermarkQuery = `-- name: AdvanceWatermark :exec
INSERT INTO settings (source, last_processed_message_id, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (source) DO UPDATE SET
    last_processed_message_id = excluded.last_processed_message_id,
    updated_at = excluded.updated_at
WHERE excluded.last_processed_message_id > settings.last_processed_message_id`

// AdvanceWatermark moves the cursor forward. The conditional upsert makes it
// compare-and-set: a stale writer loses silently and the cursor never
// regresses.
func (c *Database) AdvanceWatermark(ctx context.Context, source domain.Source, newWatermark int64) error {
	_, err := c.dbtx.ExecContext(ctx, advanceWatermarkQuery,
		string(source), newWatermark, formatTime(time.Now()))
	return err
}
