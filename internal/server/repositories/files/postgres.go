// Package files provides the PostgreSQL-backed repository for file metadata,
// scene content and asset bookkeeping. The version-checked save is a single
// conditional UPDATE so the compare and the increment cannot be split by a
// concurrent writer.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/dbx"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File, sceneBlob []byte) error {
	query := `
		INSERT INTO files (id, owner_user_id, team_id, title, version, is_favorite, is_trashed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, FALSE, FALSE, $5, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		file.ID, file.OwnerUserID, file.TeamID, file.Title, file.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	query = `INSERT INTO file_contents (file_id, scene) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, file.ID, sceneBlob); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := `
		SELECT id, owner_user_id, team_id, title, version, is_favorite, is_trashed,
		       trashed_at, last_opened_at, created_at, updated_at
		FROM files WHERE id = $1
	`
	var f models.File
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID, &f.OwnerUserID, &f.TeamID, &f.Title, &f.Version, &f.IsFavorite, &f.IsTrashed,
		&f.TrashedAt, &f.LastOpenedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &f, nil
}

func (r *PostgresRepository) GetScene(ctx context.Context, id string) ([]byte, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT scene FROM file_contents WHERE file_id = $1`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return blob, nil
}

func (r *PostgresRepository) StampLastOpened(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE files SET last_opened_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SaveVersioned performs the optimistic-concurrency check and the version
// increment in one statement. No row matched means the caller's base version
// is stale (or the file is gone/trashed); the stored row is left untouched.
func (r *PostgresRepository) SaveVersioned(ctx context.Context, id string, expectedVersion int64, title string, at time.Time) (int64, error) {
	query := `
		UPDATE files
		SET version = version + 1, title = $3, updated_at = $4
		WHERE id = $1 AND version = $2 AND is_trashed = FALSE
		RETURNING version
	`
	var newVersion int64
	err := r.db.QueryRowContext(ctx, query, id, expectedVersion, title, at).Scan(&newVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, common.ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return newVersion, nil
}

func (r *PostgresRepository) UpsertScene(ctx context.Context, id string, sceneBlob []byte) error {
	query := `
		INSERT INTO file_contents (file_id, scene) VALUES ($1, $2)
		ON CONFLICT (file_id) DO UPDATE SET scene = EXCLUDED.scene
	`
	if _, err := r.db.ExecContext(ctx, query, id, sceneBlob); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetTrashed(ctx context.Context, id string, trashed bool, at time.Time) error {
	var query string
	if trashed {
		query = `UPDATE files SET is_trashed = TRUE, trashed_at = $2, updated_at = $2 WHERE id = $1`
	} else {
		query = `UPDATE files SET is_trashed = FALSE, trashed_at = NULL, updated_at = $2 WHERE id = $1`
	}
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) SetFavorite(ctx context.Context, id string, favorite bool, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE files SET is_favorite = $2, updated_at = $3 WHERE id = $1`, id, favorite, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*models.File, error) {
	query := `
		SELECT id, owner_user_id, team_id, title, version, is_favorite, is_trashed,
		       trashed_at, last_opened_at, created_at, updated_at
		FROM files
	`
	var args []any
	if filter.TeamID != nil {
		query += ` WHERE team_id = $1`
		args = append(args, *filter.TeamID)
	} else {
		query += ` WHERE owner_user_id = $1 AND team_id IS NULL`
		args = append(args, filter.OwnerUserID)
	}
	if !filter.IncludeTrashed {
		query += ` AND is_trashed = FALSE`
	}
	if filter.FavoritesOnly {
		query += ` AND is_favorite = TRUE`
	}
	query += ` ORDER BY last_opened_at DESC NULLS LAST, updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		var f models.File
		if err := rows.Scan(
			&f.ID, &f.OwnerUserID, &f.TeamID, &f.Title, &f.Version, &f.IsFavorite, &f.IsTrashed,
			&f.TrashedAt, &f.LastOpenedAt, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) CreateAsset(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO file_assets (file_id, asset_id, storage_key, upload_status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		asset.FileID, asset.AssetID, asset.StorageKey, asset.UploadStatus, asset.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetAsset(ctx context.Context, fileID, assetID string) (*models.Asset, error) {
	query := `
		SELECT file_id, asset_id, storage_key, upload_status, created_at
		FROM file_assets WHERE file_id = $1 AND asset_id = $2
	`
	var a models.Asset
	err := r.db.QueryRowContext(ctx, query, fileID, assetID).Scan(
		&a.FileID, &a.AssetID, &a.StorageKey, &a.UploadStatus, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &a, nil
}

func (r *PostgresRepository) MarkAssetUploaded(ctx context.Context, fileID, assetID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE file_assets SET upload_status = 'completed' WHERE file_id = $1 AND asset_id = $2`,
		fileID, assetID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
