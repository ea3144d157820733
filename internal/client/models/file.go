// Package models defines client-side data models for the local cache and
// the durable pending-operation queue.
package models

import (
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/scene"
)

// LocalFile is the locally cached copy of a file. Version is the base
// version the client believes is current on the server; Dirty marks edits
// not yet acknowledged by the server.
type LocalFile struct {
	FileID    string
	Title     string
	Version   int64
	Scene     scene.Payload
	Dirty     bool
	UpdatedAt time.Time
}

// FileSummary is a file-list projection entry: metadata without the scene.
type FileSummary struct {
	FileID     string
	Title      string
	TeamID     *string
	Version    int64
	IsFavorite bool
	UpdatedAt  time.Time
}
