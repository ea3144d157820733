// Package syncer drives synchronization between the local cache and the
// server: it debounces edits into version-checked saves, queues intents that
// fail on connectivity, replays them with capped backoff, and freezes a file
// into a conflict workflow when the server reports a version race.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/client/api"
	"github.com/dmitrijs2005/scenekeeper/internal/client/models"
	"github.com/dmitrijs2005/scenekeeper/internal/client/repositories/localcache"
	"github.com/dmitrijs2005/scenekeeper/internal/client/repositories/pendingops"
	"github.com/dmitrijs2005/scenekeeper/internal/common"
	"github.com/dmitrijs2005/scenekeeper/internal/logging"
	"github.com/dmitrijs2005/scenekeeper/internal/scene"
)

// API is the server surface the coordinator depends on.
type API interface {
	Ping(ctx context.Context) error
	GetFile(ctx context.Context, fileID string) (*api.File, error)
	SaveFile(ctx context.Context, fileID string, version int64, title string, payload scene.Payload) (*api.File, error)
	CreateFile(ctx context.Context, title string, teamID *string, payload *scene.Payload) (*api.File, error)
	ListFiles(ctx context.Context) ([]api.File, error)
}

// errorKind classifies a save failure into the branch the state machine
// takes.
type errorKind int

const (
	kindNone errorKind = iota
	kindConflict
	kindNotFound
	kindForbidden
	kindInvalid
	kindUnauthorized
	kindTransport
	kindTransient
)

func classify(err error) errorKind {
	if err == nil {
		return kindNone
	}

	var transport *api.TransportError
	if errors.As(err, &transport) {
		return kindTransport
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "VERSION_CONFLICT":
			return kindConflict
		case "FILE_NOT_FOUND":
			return kindNotFound
		case "FORBIDDEN":
			return kindForbidden
		case "INVALID_INPUT":
			return kindInvalid
		case "UNAUTHORIZED":
			return kindUnauthorized
		}
		if apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500 {
			return kindTransient
		}
		return kindInvalid
	}
	return kindTransient
}

// Coordinator is the client-side sync state machine. All durable state
// (cache, queue) is accessed only under its lock; editor-facing methods are
// safe to call from any goroutine.
type Coordinator struct {
	mu sync.Mutex

	api    API
	cache  localcache.Repository
	queue  pendingops.Repository
	logger logging.Logger

	debounceInterval time.Duration
	now              func() time.Time

	state    models.SyncState
	conflict *models.ConflictContext
	fileList map[string]models.FileSummary
	lastErr  error

	openFileID    string
	debounceTimer *time.Timer
	retryTimer    *time.Timer
	replaying     bool

	// OnNotice surfaces user-visible events (remote deletion, hard
	// failures). May be nil.
	OnNotice func(msg string)
}

func NewCoordinator(a API, cache localcache.Repository, queue pendingops.Repository,
	logger logging.Logger, debounceInterval time.Duration) *Coordinator {
	return &Coordinator{
		api:              a,
		cache:            cache,
		queue:            queue,
		logger:           logger.With("module", "syncer"),
		debounceInterval: debounceInterval,
		now:              func() time.Time { return time.Now().UTC() },
		state:            models.SyncIdle,
		fileList:         make(map[string]models.FileSummary),
	}
}

// State returns the session-level sync indicator.
func (c *Coordinator) State() models.SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Conflict returns the active conflict context, or nil.
func (c *Coordinator) Conflict() *models.ConflictContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conflict == nil {
		return nil
	}
	cc := *c.conflict
	return &cc
}

// LastError returns the most recent surfaced failure.
func (c *Coordinator) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// FileList returns the current file-list projection.
func (c *Coordinator) FileList() []models.FileSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.FileSummary, 0, len(c.fileList))
	for _, s := range c.fileList {
		out = append(out, s)
	}
	return out
}

// RefreshFileList rebuilds the projection from the server.
func (c *Coordinator) RefreshFileList(ctx context.Context) error {
	files, err := c.api.ListFiles(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.fileList = make(map[string]models.FileSummary, len(files))
	for _, f := range files {
		c.fileList[f.ID] = models.FileSummary{
			FileID:     f.ID,
			Title:      f.Title,
			TeamID:     f.TeamID,
			Version:    f.Version,
			IsFavorite: f.IsFavorite,
			UpdatedAt:  f.UpdatedAt,
		}
	}
	return nil
}

// Open fetches the remote record and reconciles it with the local cache:
// the higher version wins and the scene is replaced, not merged. When the
// server is unreachable the cached copy is used and the session goes
// offline.
func (c *Coordinator) Open(ctx context.Context, fileID string) (*models.LocalFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.openFileID = fileID

	remote, err := c.api.GetFile(ctx, fileID)
	switch classify(err) {
	case kindNone:
	case kindNotFound:
		c.purgeLocked(ctx, fileID)
		c.notice(fmt.Sprintf("file %s was deleted on the server", fileID))
		return nil, err
	case kindTransport:
		local, cerr := c.cache.Get(ctx, fileID)
		if cerr != nil {
			return nil, err
		}
		c.state = models.SyncOffline
		return local, nil
	default:
		return nil, err
	}

	local, cerr := c.cache.Get(ctx, fileID)
	if cerr == nil && local.Version > remote.Version {
		// local is ahead (an acknowledged save the list view has not seen);
		// keep it
		return local, nil
	}

	merged := &models.LocalFile{
		FileID:    fileID,
		Title:     remote.Title,
		Version:   remote.Version,
		Dirty:     false,
		UpdatedAt: c.now(),
	}
	if remote.Scene != nil {
		merged.Scene = *remote.Scene
	} else {
		merged.Scene = scene.Empty()
	}
	if err := c.cache.Put(ctx, merged); err != nil {
		return nil, err
	}

	c.fileList[fileID] = models.FileSummary{
		FileID:     fileID,
		Title:      remote.Title,
		TeamID:     remote.TeamID,
		Version:    remote.Version,
		IsFavorite: remote.IsFavorite,
		UpdatedAt:  remote.UpdatedAt,
	}
	if c.state == models.SyncIdle {
		c.state = models.SyncSynced
	}
	return merged, nil
}

// Edit applies a local change: write-through to the cache immediately so a
// crash cannot lose it, then arm the trailing-edge debounce timer. Rapid
// edits to the same file collapse into one save.
func (c *Coordinator) Edit(ctx context.Context, fileID, title string, payload scene.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conflict != nil && c.conflict.FileID == fileID {
		return fmt.Errorf("file %s has an unresolved conflict", fileID)
	}

	local, err := c.cache.Get(ctx, fileID)
	if errors.Is(err, common.ErrNotFound) {
		// first local edit without a prior open: start at base version 1
		local = &models.LocalFile{FileID: fileID, Version: 1}
	} else if err != nil {
		return err
	}

	local.Title = title
	local.Scene = payload
	local.Dirty = true
	local.UpdatedAt = c.now()
	if err := c.cache.Put(ctx, local); err != nil {
		return err
	}

	c.state = models.SyncDirty

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = time.AfterFunc(c.debounceInterval, func() {
		c.Flush(context.Background(), fileID)
	})
	return nil
}

// Flush performs the debounced save immediately. It is the debounce timer's
// callback and is also called directly when the editor wants to force a
// save.
func (c *Coordinator) Flush(ctx context.Context, fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.saveLocked(ctx, fileID)
}

// saveLocked runs one save attempt for the cached file and applies the
// outcome to the state machine. Caller holds the lock.
func (c *Coordinator) saveLocked(ctx context.Context, fileID string) {
	if c.conflict != nil && c.conflict.FileID == fileID {
		c.state = models.SyncConflict
		return
	}

	local, err := c.cache.Get(ctx, fileID)
	if err != nil || !local.Dirty {
		return
	}

	c.state = models.SyncSyncing

	saved, err := c.api.SaveFile(ctx, fileID, local.Version, local.Title, local.Scene)
	switch classify(err) {
	case kindNone:
		c.applySaveSuccessLocked(ctx, local, saved)

	case kindConflict:
		c.enterConflictLocked(err, local)

	case kindNotFound:
		c.purgeLocked(ctx, fileID)
		c.notice(fmt.Sprintf("file %s was deleted on the server", fileID))

	case kindTransport:
		c.enqueueLocked(ctx, local)
		c.state = models.SyncOffline

	case kindForbidden, kindInvalid, kindUnauthorized:
		// fatal for this operation: surface, never queue
		c.lastErr = err
		c.state = models.SyncDirty
		c.logger.Warn(ctx, "save rejected", "file_id", fileID, "error", err)

	default: // transient server-side failure
		c.enqueueLocked(ctx, local)
		c.state = models.SyncDirty
	}
}

func (c *Coordinator) applySaveSuccessLocked(ctx context.Context, local *models.LocalFile, saved *api.File) {
	local.Version = saved.Version
	local.Title = saved.Title
	local.Dirty = false
	local.UpdatedAt = c.now()
	if err := c.cache.Put(ctx, local); err != nil {
		c.logger.Error(ctx, "failed to update cache after save", "file_id", local.FileID, "error", err)
	}

	if err := c.queue.Delete(ctx, local.FileID); err != nil {
		c.logger.Error(ctx, "failed to prune pending op", "file_id", local.FileID, "error", err)
	}

	c.fileList[local.FileID] = models.FileSummary{
		FileID:     local.FileID,
		Title:      saved.Title,
		TeamID:     saved.TeamID,
		Version:    saved.Version,
		IsFavorite: saved.IsFavorite,
		UpdatedAt:  saved.UpdatedAt,
	}
	c.lastErr = nil
	c.state = models.SyncSynced
}

func (c *Coordinator) enterConflictLocked(err error, local *models.LocalFile) {
	var apiErr *api.APIError
	serverVersion := int64(0)
	if errors.As(err, &apiErr) && apiErr.CurrentVersion != nil {
		serverVersion = *apiErr.CurrentVersion
	}

	// team scope travels with the conflict so a fork lands in the same scope
	var teamID *string
	if summary, ok := c.fileList[local.FileID]; ok {
		teamID = summary.TeamID
	}

	c.conflict = &models.ConflictContext{
		FileID:        local.FileID,
		Title:         local.Title,
		TeamID:        teamID,
		LocalVersion:  local.Version,
		ServerVersion: serverVersion,
	}
	c.state = models.SyncConflict
}

// enqueueLocked records a durable save intent, superseding any queued one
// for the same file.
func (c *Coordinator) enqueueLocked(ctx context.Context, local *models.LocalFile) {
	now := c.now()
	createdAt := now
	if existing, err := c.queue.Get(ctx, local.FileID); err == nil {
		createdAt = existing.CreatedAt
	}

	op := &models.PendingOp{
		Type:        models.OpSave,
		FileID:      local.FileID,
		Version:     local.Version,
		Title:       local.Title,
		Scene:       local.Scene,
		Attempt:     0,
		NextRetryAt: now,
		CreatedAt:   createdAt,
	}
	if err := c.queue.Enqueue(ctx, op); err != nil {
		c.logger.Error(ctx, "failed to enqueue pending op", "file_id", local.FileID, "error", err)
	}
}

// purgeLocked removes every trace of a remotely deleted file: cache entry,
// queued ops, conflict context, and the file-list entry. The open file keeps
// an empty scene so the editor does not render stale content.
func (c *Coordinator) purgeLocked(ctx context.Context, fileID string) {
	if err := c.cache.Delete(ctx, fileID); err != nil {
		c.logger.Error(ctx, "failed to purge cache entry", "file_id", fileID, "error", err)
	}
	if err := c.queue.Delete(ctx, fileID); err != nil {
		c.logger.Error(ctx, "failed to purge pending op", "file_id", fileID, "error", err)
	}
	if c.conflict != nil && c.conflict.FileID == fileID {
		c.conflict = nil
	}
	delete(c.fileList, fileID)

	// the open editor must not keep rendering a file the server deleted
	if c.openFileID == fileID {
		err := c.cache.Put(ctx, &models.LocalFile{
			FileID:    fileID,
			Version:   1,
			Scene:     scene.Empty(),
			UpdatedAt: c.now(),
		})
		if err != nil {
			c.logger.Error(ctx, "failed to reset open file", "file_id", fileID, "error", err)
		}
	}
	c.state = models.SyncSynced
}

// Replay drains ready pending operations in created order. It runs on
// connectivity restoration, on the retry timer, and on focus regained; a
// second invocation while one is active is a no-op, and a live conflict
// suppresses replay entirely.
func (c *Coordinator) Replay(ctx context.Context) {
	c.mu.Lock()
	if c.replaying {
		c.mu.Unlock()
		return
	}
	if c.conflict != nil {
		c.state = models.SyncConflict
		c.mu.Unlock()
		return
	}
	c.replaying = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.replaying = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		op, nextAt, err := c.queue.DequeueReady(ctx, c.now())
		if err != nil {
			c.logger.Error(ctx, "failed to read pending queue", "error", err)
			c.mu.Unlock()
			return
		}

		if op == nil {
			if nextAt.IsZero() {
				if c.state != models.SyncConflict {
					c.state = models.SyncSynced
				}
			} else {
				c.armRetryTimerLocked(nextAt)
			}
			c.mu.Unlock()
			return
		}

		done := c.replayOneLocked(ctx, op)
		c.mu.Unlock()
		if done {
			return
		}
	}
}

// replayOneLocked replays a single op. Returns true when the replay loop
// must stop (conflict or offline).
func (c *Coordinator) replayOneLocked(ctx context.Context, op *models.PendingOp) bool {
	saved, err := c.api.SaveFile(ctx, op.FileID, op.Version, op.Title, op.Scene)
	switch classify(err) {
	case kindNone:
		local := &models.LocalFile{
			FileID:  op.FileID,
			Title:   op.Title,
			Version: op.Version,
			Scene:   op.Scene,
			Dirty:   true,
		}
		c.applySaveSuccessLocked(ctx, local, saved)
		return false

	case kindConflict:
		c.enterConflictLocked(err, &models.LocalFile{
			FileID:  op.FileID,
			Title:   op.Title,
			Version: op.Version,
		})
		if err := c.queue.Delete(ctx, op.FileID); err != nil {
			c.logger.Error(ctx, "failed to prune conflicted op", "file_id", op.FileID, "error", err)
		}
		return true

	case kindNotFound:
		c.purgeLocked(ctx, op.FileID)
		c.notice(fmt.Sprintf("file %s was deleted on the server", op.FileID))
		return false

	case kindTransport:
		if err := c.queue.MarkForRetry(ctx, op.FileID, c.now()); err != nil {
			c.logger.Error(ctx, "failed to reschedule op", "file_id", op.FileID, "error", err)
		}
		c.state = models.SyncOffline
		c.armRetryTimerFromQueueLocked(ctx)
		return true

	case kindForbidden, kindInvalid, kindUnauthorized:
		// moot: the server will never accept this intent
		c.lastErr = err
		if derr := c.queue.Delete(ctx, op.FileID); derr != nil {
			c.logger.Error(ctx, "failed to drop rejected op", "file_id", op.FileID, "error", derr)
		}
		c.notice(fmt.Sprintf("queued save for %s was rejected: %v", op.FileID, err))
		return false

	default:
		if err := c.queue.MarkForRetry(ctx, op.FileID, c.now()); err != nil {
			c.logger.Error(ctx, "failed to reschedule op", "file_id", op.FileID, "error", err)
		}
		return false
	}
}

func (c *Coordinator) armRetryTimerFromQueueLocked(ctx context.Context) {
	_, nextAt, err := c.queue.DequeueReady(ctx, c.now())
	if err == nil && !nextAt.IsZero() {
		c.armRetryTimerLocked(nextAt)
	}
}

// armRetryTimerLocked schedules a replay for exactly the queue's minimum
// deadline. No polling.
func (c *Coordinator) armRetryTimerLocked(at time.Time) {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	c.retryTimer = time.AfterFunc(delay, func() {
		c.Replay(context.Background())
	})
}

// Close stops outstanding timers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
}

func (c *Coordinator) notice(msg string) {
	if c.OnNotice != nil {
		c.OnNotice(msg)
	}
}
