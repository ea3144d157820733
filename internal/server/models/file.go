// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/scene"
)

// File is the server-of-record metadata for a document. Version is the
// single source of truth for write ordering: it starts at 1 and increases by
// exactly 1 per accepted save.
type File struct {
	ID          string
	OwnerUserID string
	// TeamID is nil for personally owned files.
	TeamID       *string
	Title        string
	Version      int64
	IsFavorite   bool
	IsTrashed    bool
	TrashedAt    *time.Time
	LastOpenedAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Scene is populated only by operations that include content.
	Scene *scene.Payload
}

const (
	AssetUploadPending   = "pending"
	AssetUploadCompleted = "completed"
)

// Asset is bookkeeping for a binary blob referenced from a scene and stored
// in object storage rather than in the scene row itself.
type Asset struct {
	FileID       string
	AssetID      string
	StorageKey   string
	UploadStatus string
	CreatedAt    time.Time
}
