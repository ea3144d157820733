package models

import (
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/scene"
)

// OpSave is currently the only pending-operation type.
const OpSave = "save"

// PendingOp is a durable write intent awaiting acknowledgement. At most one
// exists per file: a newer edit supersedes the queued scene but keeps the
// original CreatedAt so replay order reflects first intent.
type PendingOp struct {
	Type    string
	FileID  string
	Version int64
	Title   string
	Scene   scene.Payload

	// Attempt counts failed tries; NextRetryAt gates readiness.
	Attempt     int
	NextRetryAt time.Time
	CreatedAt   time.Time
}

// Ready reports whether the op may be replayed at the given instant.
func (op *PendingOp) Ready(now time.Time) bool {
	return !op.NextRetryAt.After(now)
}
