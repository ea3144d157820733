package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/scenekeeper/internal/client/api"
	"github.com/dmitrijs2005/scenekeeper/internal/client/models"
)

// Overwrite retries up to overwriteAttempts times in total before giving up.
const (
	overwriteAttempts = 3
	overwriteBackoff  = 500 * time.Millisecond
)

// Overwrite resolves the active conflict by re-fetching the server's record
// and saving the local scene on top of its fresh version and title. The
// local scene wins; the server's concurrent scene edit is discarded.
// Repeated races during the retry are bounded; afterwards a hard failure is
// surfaced.
func (c *Coordinator) Overwrite(ctx context.Context) error {
	c.mu.Lock()
	cc := c.conflict
	c.mu.Unlock()
	if cc == nil {
		return fmt.Errorf("no active conflict")
	}

	local, err := c.cache.Get(ctx, cc.FileID)
	if err != nil {
		return err
	}

	// re-fetch for the true latest version and title; only the scene content
	// is ours to impose
	var saved *api.File
	backoff := retry.WithMaxRetries(overwriteAttempts-1, retry.NewConstant(overwriteBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		remote, err := c.api.GetFile(ctx, cc.FileID)
		if err != nil {
			return err
		}

		saved, err = c.api.SaveFile(ctx, cc.FileID, remote.Version, remote.Title, local.Scene)
		if classify(err) == kindConflict {
			// another writer slipped in between fetch and save
			return retry.RetryableError(err)
		}
		return err
	})

	switch classify(err) {
	case kindNone:
	case kindNotFound:
		c.mu.Lock()
		c.purgeLocked(ctx, cc.FileID)
		c.mu.Unlock()
		c.notice(fmt.Sprintf("file %s was deleted on the server", cc.FileID))
		return err
	default:
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("overwrite failed after %d attempts: %w", overwriteAttempts, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	local.Version = saved.Version
	local.Title = saved.Title
	local.Dirty = false
	local.UpdatedAt = c.now()
	if err := c.cache.Put(ctx, local); err != nil {
		return err
	}
	if err := c.queue.Delete(ctx, cc.FileID); err != nil {
		return err
	}

	c.fileList[cc.FileID] = models.FileSummary{
		FileID:     cc.FileID,
		Title:      saved.Title,
		TeamID:     saved.TeamID,
		Version:    saved.Version,
		IsFavorite: saved.IsFavorite,
		UpdatedAt:  saved.UpdatedAt,
	}
	c.conflict = nil
	c.lastErr = nil
	c.state = models.SyncSynced
	return nil
}

// ForkAsCopy resolves the active conflict by creating a new file carrying
// the local scene, titled after the original plus " (copy)". The original
// file keeps the server's winning content untouched.
func (c *Coordinator) ForkAsCopy(ctx context.Context) (string, error) {
	c.mu.Lock()
	cc := c.conflict
	c.mu.Unlock()
	if cc == nil {
		return "", fmt.Errorf("no active conflict")
	}

	local, err := c.cache.Get(ctx, cc.FileID)
	if err != nil {
		return "", err
	}

	created, err := c.api.CreateFile(ctx, local.Title+" (copy)", cc.TeamID, &local.Scene)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	forked := &models.LocalFile{
		FileID:    created.ID,
		Title:     created.Title,
		Version:   created.Version,
		Scene:     local.Scene,
		Dirty:     false,
		UpdatedAt: c.now(),
	}
	if err := c.cache.Put(ctx, forked); err != nil {
		return "", err
	}
	if err := c.queue.Delete(ctx, cc.FileID); err != nil {
		return "", err
	}

	c.fileList[created.ID] = models.FileSummary{
		FileID:     created.ID,
		Title:      created.Title,
		TeamID:     created.TeamID,
		Version:    created.Version,
		IsFavorite: created.IsFavorite,
		UpdatedAt:  created.UpdatedAt,
	}
	c.conflict = nil
	c.lastErr = nil
	c.state = models.SyncSynced
	return created.ID, nil
}
