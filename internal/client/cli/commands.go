package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"

	"github.com/dmitrijs2005/scenekeeper/internal/client/models"
	"github.com/dmitrijs2005/scenekeeper/internal/filex"
	"github.com/dmitrijs2005/scenekeeper/internal/netx"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// List prints the known files, refreshed from the server when reachable.
func (a *App) List(ctx context.Context) error {
	if err := a.sync.RefreshFileList(ctx); err != nil {
		printlnFn("(offline: showing cached list)")
	}

	files := a.sync.FileList()
	sort.Slice(files, func(i, j int) bool { return files[i].UpdatedAt.After(files[j].UpdatedAt) })

	if len(files) == 0 {
		printlnFn("No files")
		return nil
	}
	for _, f := range files {
		star := " "
		if f.IsFavorite {
			star = "*"
		}
		printlnFn(fmt.Sprintf("%s %s  v%d  %s", star, f.FileID, f.Version, f.Title))
	}
	return nil
}

// New creates a file on the server and opens it.
func (a *App) New(ctx context.Context, title string) error {
	created, err := a.api.CreateFile(ctx, title, nil, nil)
	if err != nil {
		return err
	}
	printlnFn("Created", created.ID)
	return a.Open(ctx, created.ID)
}

// Open fetches the file (or falls back to the cached copy) and makes it the
// current edit target.
func (a *App) Open(ctx context.Context, fileID string) error {
	local, err := a.sync.Open(ctx, fileID)
	if err != nil {
		return err
	}

	a.openFileID = fileID
	printlnFn(fmt.Sprintf("Opened %q (v%d)", local.Title, local.Version))
	printlnFn("elements:", string(local.Scene.Elements))
	return nil
}

// Edit reads replacement scene elements and records the change; the save is
// debounced and runs in the background.
func (a *App) Edit(ctx context.Context) error {
	local, err := a.currentFile(ctx)
	if err != nil {
		return err
	}

	text, err := GetMultiline(a.reader, "Paste scene elements JSON", os.Stdout)
	if err != nil {
		return err
	}

	payload := local.Scene
	payload.Elements = json.RawMessage(text)
	if err := payload.Validate(); err != nil {
		return err
	}

	return a.sync.Edit(ctx, a.openFileID, local.Title, payload)
}

// Rename changes the current file's title through the same debounced path
// as scene edits.
func (a *App) Rename(ctx context.Context, title string) error {
	local, err := a.currentFile(ctx)
	if err != nil {
		return err
	}
	return a.sync.Edit(ctx, a.openFileID, title, local.Scene)
}

// Save forces the pending debounced save to run now.
func (a *App) Save(ctx context.Context) error {
	if a.openFileID == "" {
		return fmt.Errorf("no file open")
	}
	a.sync.Flush(ctx, a.openFileID)
	return a.Status(ctx)
}

// Sync replays queued saves immediately instead of waiting for the retry
// timer.
func (a *App) Sync(ctx context.Context) error {
	a.sync.Replay(ctx)
	return a.Status(ctx)
}

// Status prints the sync state and, when a conflict is active, both sides'
// versions.
func (a *App) Status(ctx context.Context) error {
	printlnFn("state:", string(a.sync.State()))

	if cc := a.sync.Conflict(); cc != nil {
		printlnFn(fmt.Sprintf("conflict on %q: local v%d vs server v%d", cc.Title, cc.LocalVersion, cc.ServerVersion))
		printlnFn("resolve with: resolve keep | resolve copy")
	}
	if err := a.sync.LastError(); err != nil {
		printlnFn("last error:", err.Error())
	}
	return nil
}

// Resolve ends the active conflict: "keep" overwrites the server with the
// local scene, "copy" forks the local scene into a new file.
func (a *App) Resolve(ctx context.Context, how string) error {
	switch how {
	case "keep":
		if err := a.sync.Overwrite(ctx); err != nil {
			return err
		}
		printlnFn("Server overwritten with the local version")
		return nil

	case "copy":
		copyID, err := a.sync.ForkAsCopy(ctx)
		if err != nil {
			return err
		}
		a.openFileID = copyID
		printlnFn("Forked into", copyID)
		return nil

	default:
		return fmt.Errorf("usage: resolve keep|copy")
	}
}

func (a *App) Trash(ctx context.Context, fileID string) error {
	if err := a.api.TrashFile(ctx, fileID); err != nil {
		return err
	}
	printlnFn("Trashed", fileID)
	return nil
}

func (a *App) Restore(ctx context.Context, fileID string) error {
	if _, err := a.api.RestoreFile(ctx, fileID); err != nil {
		return err
	}
	printlnFn("Restored", fileID)
	return nil
}

func (a *App) Purge(ctx context.Context, fileID string) error {
	if err := a.api.DeleteFilePermanent(ctx, fileID); err != nil {
		return err
	}
	printlnFn("Permanently deleted", fileID)
	return nil
}

func (a *App) Favorite(ctx context.Context, fileID string, favorite bool) error {
	if _, err := a.api.SetFavorite(ctx, fileID, favorite); err != nil {
		return err
	}
	return nil
}

// Attach uploads a local file as a binary asset of the open file: register
// a pending asset, PUT the bytes to the presigned URL, confirm.
func (a *App) Attach(ctx context.Context, path string) error {
	if a.openFileID == "" {
		return fmt.Errorf("no file open")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	grant, err := a.api.CreateAssetUpload(ctx, a.openFileID)
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if err := netx.UploadPresigned(ctx, grant.UploadURL, data, contentType); err != nil {
		return err
	}

	if err := a.api.CompleteAssetUpload(ctx, a.openFileID, grant.AssetID); err != nil {
		return err
	}

	printlnFn("Uploaded asset", grant.AssetID)
	return nil
}

// Fetch downloads an uploaded asset of the open file into ./downloads/.
func (a *App) Fetch(ctx context.Context, assetID string) error {
	if a.openFileID == "" {
		return fmt.Errorf("no file open")
	}

	url, err := a.api.GetAssetDownloadURL(ctx, a.openFileID, assetID)
	if err != nil {
		return err
	}

	data, err := netx.DownloadPresigned(ctx, url)
	if err != nil {
		return err
	}

	dir, err := filex.EnsureSubDir("downloads")
	if err != nil {
		return err
	}

	dst := filepath.Join(dir, assetID)
	if err := os.WriteFile(dst, data, 0o660); err != nil {
		return err
	}

	printlnFn("Saved to", dst)
	return nil
}

func (a *App) currentFile(ctx context.Context) (*models.LocalFile, error) {
	if a.openFileID == "" {
		return nil, fmt.Errorf("no file open")
	}
	local, err := a.repos.Cache.Get(ctx, a.openFileID)
	if err != nil {
		return nil, err
	}
	local.Scene = local.Scene.Normalize()
	return local, nil
}
