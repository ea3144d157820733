package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
)

// ListFilter narrows List results. TeamID nil means personal scope
// (team_id IS NULL, owner match); non-nil means team scope.
type ListFilter struct {
	OwnerUserID    string
	TeamID         *string
	IncludeTrashed bool
	FavoritesOnly  bool
}

// Repository is the persistence contract for file metadata and content.
// Implementations must make SaveVersioned a single conditional statement so
// that two writers holding the same base version can never both succeed.
type Repository interface {
	Create(ctx context.Context, file *models.File, sceneBlob []byte) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	GetScene(ctx context.Context, id string) ([]byte, error)
	StampLastOpened(ctx context.Context, id string, at time.Time) error

	// SaveVersioned atomically increments version by 1 iff the stored
	// version equals expectedVersion and the file is not trashed. Returns
	// the new version, or common.ErrVersionConflict without mutating state.
	SaveVersioned(ctx context.Context, id string, expectedVersion int64, title string, at time.Time) (int64, error)
	UpsertScene(ctx context.Context, id string, sceneBlob []byte) error

	SetTrashed(ctx context.Context, id string, trashed bool, at time.Time) error
	SetFavorite(ctx context.Context, id string, favorite bool, at time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*models.File, error)

	CreateAsset(ctx context.Context, asset *models.Asset) error
	GetAsset(ctx context.Context, fileID, assetID string) (*models.Asset, error)
	MarkAssetUploaded(ctx context.Context, fileID, assetID string) error
}
