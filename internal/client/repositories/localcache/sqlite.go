// Package localcache stores the locally cached copy of each file so the
// editor can render instantly and edits survive a crash or restart.
package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/scenekeeper/internal/client/models"
	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/dbx"
	"github.com/dmitrijs2005/scenekeeper/internal/scene"
)

type Repository interface {
	Get(ctx context.Context, fileID string) (*models.LocalFile, error)
	Put(ctx context.Context, f *models.LocalFile) error
	Delete(ctx context.Context, fileID string) error
	List(ctx context.Context) ([]*models.LocalFile, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, fileID string) (*models.LocalFile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT file_id, title, version, scene, dirty, updated_at
		FROM local_files WHERE file_id = ?`, fileID)

	var f models.LocalFile
	var blob []byte
	err := row.Scan(&f.FileID, &f.Title, &f.Version, &blob, &f.Dirty, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get local file: %w", err)
	}

	f.Scene, err = scene.Decode(blob)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, f *models.LocalFile) error {
	blob, err := f.Scene.Encode()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO local_files (file_id, title, version, scene, dirty, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			title = excluded.title,
			version = excluded.version,
			scene = excluded.scene,
			dirty = excluded.dirty,
			updated_at = excluded.updated_at`,
		f.FileID, f.Title, f.Version, blob, f.Dirty, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to put local file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, fileID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM local_files WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete local file: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.LocalFile, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT file_id, title, version, scene, dirty, updated_at
		FROM local_files ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list local files: %w", err)
	}
	defer rows.Close()

	var out []*models.LocalFile
	for rows.Next() {
		var f models.LocalFile
		var blob []byte
		if err := rows.Scan(&f.FileID, &f.Title, &f.Version, &blob, &f.Dirty, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan local file: %w", err)
		}
		if f.Scene, err = scene.Decode(blob); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate local files: %w", err)
	}
	return out, nil
}
