// Package audit defines the audit sink consumed by mutating operations.
// Failures to record are logged and never fail the operation itself.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/scenekeeper/internal/logging"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
	auditrepo "github.com/dmitrijs2005/scenekeeper/internal/server/repositories/audit"
)

// Sink records who did what to which file.
type Sink interface {
	Log(ctx context.Context, action models.AuditAction, actorID string, fileID, teamID *string, metadata map[string]any)
}

type Service struct {
	repo   auditrepo.Repository
	logger logging.Logger
}

func NewService(repo auditrepo.Repository, logger logging.Logger) *Service {
	return &Service{repo: repo, logger: logger.With("module", "audit")}
}

func (s *Service) Log(ctx context.Context, action models.AuditAction, actorID string, fileID, teamID *string, metadata map[string]any) {
	rec := &models.AuditRecord{
		ID:          uuid.NewString(),
		Action:      action,
		ActorUserID: actorID,
		FileID:      fileID,
		TeamID:      teamID,
		Metadata:    metadata,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		s.logger.Error(ctx, "failed to append audit record", "action", action, "error", err)
	}
}
