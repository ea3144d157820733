// Package services contains the server-side application services behind the
// HTTP API. FileService is the versioned store: every accepted save advances
// a file's version by exactly 1, and the compare-and-increment happens in a
// single conditional statement so concurrent writers holding the same base
// version cannot both win.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/dbx"
	"github.com/dmitrijs2005/scenekeeper/internal/scene"
	"github.com/dmitrijs2005/scenekeeper/internal/server/access"
	"github.com/dmitrijs2005/scenekeeper/internal/server/audit"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/repomanager"
)

const defaultTitle = "Untitled"

type FileService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	access access.Control
	audit  audit.Sink
	now    func() time.Time
}

func NewFileService(db *sql.DB, repos repomanager.RepositoryManager, ac access.Control, sink audit.Sink) *FileService {
	return &FileService{
		db:     db,
		repos:  repos,
		access: ac,
		audit:  sink,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type CreateFileInput struct {
	Title  string
	TeamID *string
	Scene  *scene.Payload
}

// Create initializes a file at version 1.
func (s *FileService) Create(ctx context.Context, userID string, input CreateFileInput) (*models.File, error) {
	if err := s.access.CanCreateIn(ctx, userID, input.TeamID); err != nil {
		return nil, err
	}

	payload := scene.Empty()
	if input.Scene != nil {
		if err := input.Scene.Validate(); err != nil {
			return nil, err
		}
		payload = input.Scene.Normalize()
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultTitle
	}

	blob, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode scene: %w", err)
	}

	now := s.now()
	file := &models.File{
		ID:          uuid.NewString(),
		OwnerUserID: userID,
		TeamID:      input.TeamID,
		Title:       title,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repos.Files(tx).Create(ctx, file, blob)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	s.audit.Log(ctx, models.AuditFileCreate, userID, &file.ID, file.TeamID, nil)

	file.Scene = &payload
	return file, nil
}

// Get returns the file with its scene and stamps lastOpenedAt.
func (s *FileService) Get(ctx context.Context, userID, fileID string) (*models.File, error) {
	repo := s.repos.Files(s.db)

	file, err := repo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.IsTrashed {
		return nil, common.ErrNotFound
	}
	if err := s.access.CanRead(ctx, userID, file); err != nil {
		return nil, err
	}

	blob, err := repo.GetScene(ctx, fileID)
	if err != nil {
		return nil, err
	}
	payload, err := scene.Decode(blob)
	if err != nil {
		return nil, err
	}

	openedAt := s.now()
	if err := repo.StampLastOpened(ctx, fileID, openedAt); err != nil {
		return nil, err
	}
	file.LastOpenedAt = &openedAt

	file.Scene = &payload
	return file, nil
}

type SaveFileInput struct {
	FileID  string
	Version int64
	Title   string
	Scene   scene.Payload
}

// Save is the optimistic-concurrency write path. A stale base version yields
// a VersionConflictError carrying the stored version; nothing is mutated in
// that case.
func (s *FileService) Save(ctx context.Context, userID string, input SaveFileInput) (*models.File, error) {
	if input.Version < 1 {
		return nil, fmt.Errorf("%w: version must be a positive integer", common.ErrInvalidInput)
	}
	if err := input.Scene.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repos.Files(s.db).GetByID(ctx, input.FileID)
	if err != nil {
		return nil, err
	}
	if existing.IsTrashed {
		return nil, common.ErrNotFound
	}
	if err := s.access.CanWrite(ctx, userID, existing); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = existing.Title
	}

	payload := input.Scene.Normalize()
	blob, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode scene: %w", err)
	}

	savedAt := s.now()
	var newVersion int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Files(tx)
		v, err := repo.SaveVersioned(ctx, input.FileID, input.Version, title, savedAt)
		if err != nil {
			return err
		}
		newVersion = v
		return repo.UpsertScene(ctx, input.FileID, blob)
	})
	if errors.Is(err, common.ErrVersionConflict) {
		// the conditional update matched no row: report the version the
		// server actually holds, or not-found if the row is gone
		current, gerr := s.repos.Files(s.db).GetByID(ctx, input.FileID)
		if gerr != nil {
			return nil, gerr
		}
		if current.IsTrashed {
			return nil, common.ErrNotFound
		}
		return nil, common.NewVersionConflict(current.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	s.audit.Log(ctx, models.AuditFileSave, userID, &existing.ID, existing.TeamID, map[string]any{
		"version": newVersion,
	})

	existing.Title = title
	existing.Version = newVersion
	existing.UpdatedAt = savedAt
	existing.Scene = &payload
	return existing, nil
}

// Trash soft-deletes a file. The version is untouched.
func (s *FileService) Trash(ctx context.Context, userID, fileID string) error {
	existing, err := s.writableFile(ctx, userID, fileID, false)
	if err != nil {
		return err
	}

	if err := s.repos.Files(s.db).SetTrashed(ctx, fileID, true, s.now()); err != nil {
		return err
	}
	s.audit.Log(ctx, models.AuditFileDeleteSoft, userID, &fileID, existing.TeamID, map[string]any{
		"ownerUserId": existing.OwnerUserID,
	})
	return nil
}

// Restore brings a trashed file back. Only valid while trashed.
func (s *FileService) Restore(ctx context.Context, userID, fileID string) (*models.File, error) {
	existing, err := s.writableFile(ctx, userID, fileID, true)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Files(s.db).SetTrashed(ctx, fileID, false, s.now()); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, models.AuditFileRestore, userID, &fileID, existing.TeamID, nil)

	return s.repos.Files(s.db).GetByID(ctx, fileID)
}

// PermanentlyDelete removes the record and its content. Only valid while trashed.
func (s *FileService) PermanentlyDelete(ctx context.Context, userID, fileID string) error {
	existing, err := s.writableFile(ctx, userID, fileID, true)
	if err != nil {
		return err
	}

	s.audit.Log(ctx, models.AuditFileDeletePermanent, userID, &fileID, existing.TeamID, map[string]any{
		"ownerUserId": existing.OwnerUserID,
	})

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repos.Files(tx).Delete(ctx, fileID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// SetFavorite toggles the favorite flag. The version is untouched.
func (s *FileService) SetFavorite(ctx context.Context, userID, fileID string, favorite bool) (*models.File, error) {
	existing, err := s.writableFile(ctx, userID, fileID, false)
	if err != nil {
		return nil, err
	}

	if err := s.repos.Files(s.db).SetFavorite(ctx, fileID, favorite, s.now()); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, models.AuditFileFavorite, userID, &fileID, existing.TeamID, map[string]any{
		"isFavorite": favorite,
	})

	return s.repos.Files(s.db).GetByID(ctx, fileID)
}

type ListFilesInput struct {
	TeamID         *string
	IncludeTrashed bool
	FavoritesOnly  bool
}

// List returns file metadata (no scenes), most recently opened first.
func (s *FileService) List(ctx context.Context, userID string, input ListFilesInput) ([]*models.File, error) {
	if input.TeamID != nil {
		if err := s.access.CanCreateIn(ctx, userID, input.TeamID); err != nil {
			return nil, err
		}
	}
	return s.repos.Files(s.db).List(ctx, files.ListFilter{
		OwnerUserID:    userID,
		TeamID:         input.TeamID,
		IncludeTrashed: input.IncludeTrashed,
		FavoritesOnly:  input.FavoritesOnly,
	})
}

// writableFile loads a file, checks write access, and enforces the expected
// trash state (trash/favorite require live files, restore/purge require
// trashed ones).
func (s *FileService) writableFile(ctx context.Context, userID, fileID string, wantTrashed bool) (*models.File, error) {
	existing, err := s.repos.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if existing.IsTrashed != wantTrashed {
		return nil, common.ErrNotFound
	}
	if err := s.access.CanWrite(ctx, userID, existing); err != nil {
		return nil, err
	}
	return existing, nil
}
