package models

// SyncState is the session-level synchronization indicator.
type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncDirty    SyncState = "dirty"
	SyncSyncing  SyncState = "syncing"
	SyncSynced   SyncState = "synced"
	SyncConflict SyncState = "conflict"
	SyncOffline  SyncState = "offline"
)

// ConflictContext freezes a file after a version conflict until the user
// picks a resolution. While present, no saves are attempted for the file.
type ConflictContext struct {
	FileID        string
	Title         string
	TeamID        *string
	LocalVersion  int64
	ServerVersion int64
}
