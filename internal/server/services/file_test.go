package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/dbx"
	"github.com/dmitrijs2005/scenekeeper/internal/scene"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
	auditrepo "github.com/dmitrijs2005/scenekeeper/internal/server/repositories/audit"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/users"

	_ "modernc.org/sqlite"
)

// testRepoManager vends the real repositories over an in-memory sqlite DB.
type testRepoManager struct{}

func (m *testRepoManager) Files(db dbx.DBTX) files.Repository    { return files.NewPostgresRepository(db) }
func (m *testRepoManager) Users(db dbx.DBTX) users.Repository    { return users.NewPostgresRepository(db) }
func (m *testRepoManager) Audit(db dbx.DBTX) auditrepo.Repository {
	return auditrepo.NewPostgresRepository(db)
}
func (m *testRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

// allowAll grants every access check.
type allowAll struct{}

func (allowAll) CanRead(context.Context, string, *models.File) error    { return nil }
func (allowAll) CanWrite(context.Context, string, *models.File) error   { return nil }
func (allowAll) CanCreateIn(context.Context, string, *string) error     { return nil }

// denyAll refuses every access check.
type denyAll struct{}

func (denyAll) CanRead(context.Context, string, *models.File) error  { return common.ErrForbidden }
func (denyAll) CanWrite(context.Context, string, *models.File) error { return common.ErrForbidden }
func (denyAll) CanCreateIn(context.Context, string, *string) error   { return common.ErrForbidden }

// recordingSink remembers audit actions in order.
type recordingSink struct {
	actions []models.AuditAction
}

func (s *recordingSink) Log(_ context.Context, action models.AuditAction, _ string, _, _ *string, _ map[string]any) {
	s.actions = append(s.actions, action)
}

func setupServiceDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// a single connection keeps the in-memory database shared and serializes
	// concurrent writers the way the pooled Postgres driver would
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE files (
  id TEXT PRIMARY KEY,
  owner_user_id TEXT NOT NULL,
  team_id TEXT,
  title TEXT NOT NULL,
  version INTEGER NOT NULL DEFAULT 1,
  is_favorite INTEGER NOT NULL DEFAULT 0,
  is_trashed INTEGER NOT NULL DEFAULT 0,
  trashed_at TIMESTAMP,
  last_opened_at TIMESTAMP,
  created_at TIMESTAMP NOT NULL,
  updated_at TIMESTAMP NOT NULL
);
CREATE TABLE file_contents (
  file_id TEXT PRIMARY KEY,
  scene BLOB NOT NULL
);
CREATE TABLE file_assets (
  file_id TEXT NOT NULL,
  asset_id TEXT NOT NULL,
  storage_key TEXT NOT NULL,
  upload_status TEXT NOT NULL DEFAULT 'pending',
  created_at TIMESTAMP NOT NULL,
  PRIMARY KEY (file_id, asset_id)
);
`)
	require.NoError(t, err)
	return db
}

func newTestService(t *testing.T) (*FileService, *recordingSink) {
	t.Helper()
	db := setupServiceDB(t)
	sink := &recordingSink{}
	svc := NewFileService(db, &testRepoManager{}, allowAll{}, sink)
	return svc, sink
}

func testScene(t *testing.T, label string) scene.Payload {
	t.Helper()
	elements, err := json.Marshal([]map[string]any{{"id": label, "type": "rectangle"}})
	require.NoError(t, err)
	return scene.Payload{
		Elements: elements,
		AppState: json.RawMessage(`{}`),
		Files:    json.RawMessage(`{}`),
	}
}

func TestFileServiceCreateDefaults(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{Title: "   "})
	require.NoError(t, err)
	assert.Equal(t, "Untitled", f.Title)
	assert.Equal(t, int64(1), f.Version)
	assert.NotNil(t, f.Scene)
	assert.Equal(t, []models.AuditAction{models.AuditFileCreate}, sink.actions)
}

func TestFileServiceSaveIncrementsVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{Title: "Sketch"})
	require.NoError(t, err)

	saved, err := svc.Save(ctx, "u1", SaveFileInput{
		FileID:  f.ID,
		Version: 1,
		Title:   "Sketch v2",
		Scene:   testScene(t, "e1"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Version)
	assert.Equal(t, "Sketch v2", saved.Title)

	got, err := svc.Get(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, string(testScene(t, "e1").Elements), string(got.Scene.Elements))
}

func TestFileServiceSaveStaleVersionConflicts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{Title: "Sketch"})
	require.NoError(t, err)

	// first writer wins
	_, err = svc.Save(ctx, "u1", SaveFileInput{FileID: f.ID, Version: 1, Scene: testScene(t, "a")})
	require.NoError(t, err)

	// second writer still holds version 1
	_, err = svc.Save(ctx, "u1", SaveFileInput{FileID: f.ID, Version: 1, Scene: testScene(t, "b")})
	require.ErrorIs(t, err, common.ErrVersionConflict)

	var vc *common.VersionConflictError
	require.ErrorAs(t, err, &vc)
	assert.Equal(t, int64(2), vc.CurrentVersion)

	// the losing save must not have mutated the scene
	got, err := svc.Get(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.JSONEq(t, string(testScene(t, "a").Elements), string(got.Scene.Elements))
}

// Under concurrent saves holding the same base version exactly one write is
// accepted; every loser gets a version conflict and nothing else mutates.
func TestFileServiceConcurrentSavesSameVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{Title: "Sketch"})
	require.NoError(t, err)

	const savers = 8
	scenes := make([]scene.Payload, savers)
	for i := range scenes {
		scenes[i] = testScene(t, fmt.Sprintf("writer-%d", i))
	}

	start := make(chan struct{})
	results := make(chan error, savers)
	var wg sync.WaitGroup
	for i := 0; i < savers; i++ {
		wg.Add(1)
		go func(payload scene.Payload) {
			defer wg.Done()
			<-start
			_, err := svc.Save(ctx, "u1", SaveFileInput{FileID: f.ID, Version: 1, Scene: payload})
			results <- err
		}(scenes[i])
	}
	close(start)
	wg.Wait()
	close(results)

	var accepted, conflicted int
	for err := range results {
		if err == nil {
			accepted++
			continue
		}
		require.ErrorIs(t, err, common.ErrVersionConflict)
		var vc *common.VersionConflictError
		require.ErrorAs(t, err, &vc)
		assert.Equal(t, int64(2), vc.CurrentVersion)
		conflicted++
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, savers-1, conflicted)

	got, err := svc.Get(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestFileServiceSaveVersionGrowsByOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{})
	require.NoError(t, err)

	for want := int64(2); want <= 6; want++ {
		saved, err := svc.Save(ctx, "u1", SaveFileInput{
			FileID:  f.ID,
			Version: want - 1,
			Scene:   testScene(t, "x"),
		})
		require.NoError(t, err)
		assert.Equal(t, want, saved.Version)
	}
}

func TestFileServiceSaveValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{})
	require.NoError(t, err)

	_, err = svc.Save(ctx, "u1", SaveFileInput{FileID: f.ID, Version: 0, Scene: testScene(t, "a")})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	bad := scene.Payload{Elements: json.RawMessage(`{"not":"an array"}`)}
	_, err = svc.Save(ctx, "u1", SaveFileInput{FileID: f.ID, Version: 1, Scene: bad})
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestFileServiceSaveEmptyTitleKeepsExisting(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{Title: "Keep me"})
	require.NoError(t, err)

	saved, err := svc.Save(ctx, "u1", SaveFileInput{FileID: f.ID, Version: 1, Scene: testScene(t, "a")})
	require.NoError(t, err)
	assert.Equal(t, "Keep me", saved.Title)
}

func TestFileServiceSaveUnknownFile(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Save(context.Background(), "u1", SaveFileInput{
		FileID:  "missing",
		Version: 1,
		Scene:   testScene(t, "a"),
	})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFileServiceTrashedFileIsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{})
	require.NoError(t, err)
	require.NoError(t, svc.Trash(ctx, "u1", f.ID))

	_, err = svc.Get(ctx, "u1", f.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.Save(ctx, "u1", SaveFileInput{FileID: f.ID, Version: 1, Scene: testScene(t, "a")})
	assert.ErrorIs(t, err, common.ErrNotFound)

	// double-trash is also not-found
	assert.ErrorIs(t, svc.Trash(ctx, "u1", f.ID), common.ErrNotFound)
}

func TestFileServiceTrashRestoreDelete(t *testing.T) {
	svc, sink := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{})
	require.NoError(t, err)

	// restore of a live file is invalid
	_, err = svc.Restore(ctx, "u1", f.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// purge of a live file is invalid
	assert.ErrorIs(t, svc.PermanentlyDelete(ctx, "u1", f.ID), common.ErrNotFound)

	require.NoError(t, svc.Trash(ctx, "u1", f.ID))

	restored, err := svc.Restore(ctx, "u1", f.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsTrashed)
	assert.Equal(t, int64(1), restored.Version)

	require.NoError(t, svc.Trash(ctx, "u1", f.ID))
	require.NoError(t, svc.PermanentlyDelete(ctx, "u1", f.ID))

	_, err = svc.Get(ctx, "u1", f.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.Contains(t, sink.actions, models.AuditFileRestore)
	assert.Contains(t, sink.actions, models.AuditFileDeletePermanent)
}

func TestFileServiceGetStampsLastOpened(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "u1", CreateFileInput{})
	require.NoError(t, err)

	got, err := svc.Get(ctx, "u1", f.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastOpenedAt)
	assert.WithinDuration(t, time.Now().UTC(), *got.LastOpenedAt, 5*time.Second)
}

func TestFileServiceFavoriteAndList(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f1, err := svc.Create(ctx, "u1", CreateFileInput{Title: "first"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, "u1", CreateFileInput{Title: "second"})
	require.NoError(t, err)

	fav, err := svc.SetFavorite(ctx, "u1", f1.ID, true)
	require.NoError(t, err)
	assert.True(t, fav.IsFavorite)

	list, err := svc.List(ctx, "u1", ListFilesInput{FavoritesOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f1.ID, list[0].ID)

	all, err := svc.List(ctx, "u1", ListFilesInput{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileServiceAccessDenied(t *testing.T) {
	db := setupServiceDB(t)
	sink := &recordingSink{}

	// seed with an allow-all service, then switch to deny-all
	seed := NewFileService(db, &testRepoManager{}, allowAll{}, sink)
	f, err := seed.Create(context.Background(), "u1", CreateFileInput{})
	require.NoError(t, err)

	svc := NewFileService(db, &testRepoManager{}, denyAll{}, sink)
	ctx := context.Background()

	_, err = svc.Get(ctx, "u2", f.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = svc.Save(ctx, "u2", SaveFileInput{FileID: f.ID, Version: 1, Scene: testScene(t, "a")})
	assert.ErrorIs(t, err, common.ErrForbidden)

	assert.ErrorIs(t, svc.Trash(ctx, "u2", f.ID), common.ErrForbidden)

	_, err = svc.Create(ctx, "u2", CreateFileInput{})
	assert.ErrorIs(t, err, common.ErrForbidden)
}
