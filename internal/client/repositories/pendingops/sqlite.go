// Package pendingops is the durable queue of unacknowledged save intents.
// At most one operation exists per file: a newer save supersedes the queued
// payload but keeps the original created_at, so replay order always reflects
// the first failed attempt.
package pendingops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/client/models"
	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/dbx"
	"github.com/dmitrijs2005/scenekeeper/internal/scene"
)

// Backoff schedule: base doubles per attempt, capped.
const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// Backoff returns the retry delay after the given number of failed attempts.
// It is monotonically non-decreasing in attempt and capped at backoffCap.
func Backoff(attempt int) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			return backoffCap
		}
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}

type Repository interface {
	// Enqueue inserts a save intent, or supersedes the existing one for the
	// same file while preserving its created_at and resetting the retry
	// schedule.
	Enqueue(ctx context.Context, op *models.PendingOp) error

	Get(ctx context.Context, fileID string) (*models.PendingOp, error)
	Delete(ctx context.Context, fileID string) error
	Count(ctx context.Context) (int, error)

	// DequeueReady returns the earliest-created op with next_retry_at <= now.
	// When nothing is ready it returns (nil, minNextRetryAt, nil) so the
	// caller can arm a timer for exactly that instant; a zero time means the
	// queue is empty.
	DequeueReady(ctx context.Context, now time.Time) (*models.PendingOp, time.Time, error)

	// MarkForRetry increments the attempt counter and pushes next_retry_at
	// forward by the capped exponential backoff.
	MarkForRetry(ctx context.Context, fileID string, now time.Time) error
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, op *models.PendingOp) error {
	blob, err := op.Scene.Encode()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_ops (file_id, type, version, title, scene, attempt, next_retry_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			type = excluded.type,
			version = excluded.version,
			title = excluded.title,
			scene = excluded.scene,
			attempt = excluded.attempt,
			next_retry_at = excluded.next_retry_at`,
		op.FileID, op.Type, op.Version, op.Title, blob, op.Attempt, op.NextRetryAt, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending op: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, fileID string) (*models.PendingOp, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT file_id, type, version, title, scene, attempt, next_retry_at, created_at
		FROM pending_ops WHERE file_id = ?`, fileID))
}

func (r *SQLiteRepository) Delete(ctx context.Context, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_ops WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete pending op: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_ops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending ops: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) DequeueReady(ctx context.Context, now time.Time) (*models.PendingOp, time.Time, error) {
	op, err := r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT file_id, type, version, title, scene, attempt, next_retry_at, created_at
		FROM pending_ops WHERE next_retry_at <= ?
		ORDER BY created_at ASC LIMIT 1`, now))
	if err == nil {
		return op, time.Time{}, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, time.Time{}, err
	}

	// nothing ready: report the queue's minimum deadline
	var next sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MIN(next_retry_at) FROM pending_ops`).Scan(&next); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to read retry deadline: %w", err)
	}
	if !next.Valid {
		return nil, time.Time{}, nil
	}
	return nil, next.Time, nil
}

func (r *SQLiteRepository) MarkForRetry(ctx context.Context, fileID string, now time.Time) error {
	op, err := r.Get(ctx, fileID)
	if err != nil {
		return err
	}

	attempt := op.Attempt + 1
	deadline := now.Add(Backoff(attempt))

	_, err = r.db.ExecContext(ctx, `
		UPDATE pending_ops SET attempt = ?, next_retry_at = ? WHERE file_id = ?`,
		attempt, deadline, fileID)
	if err != nil {
		return fmt.Errorf("failed to mark pending op for retry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) scanOne(row *sql.Row) (*models.PendingOp, error) {
	var op models.PendingOp
	var blob []byte
	err := row.Scan(&op.FileID, &op.Type, &op.Version, &op.Title, &blob,
		&op.Attempt, &op.NextRetryAt, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending op: %w", err)
	}

	if op.Scene, err = scene.Decode(blob); err != nil {
		return nil, err
	}
	return &op, nil
}
