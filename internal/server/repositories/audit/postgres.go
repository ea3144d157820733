// Package audit provides the PostgreSQL-backed append-only audit log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/scenekeeper/internal/dbx"
	"github.com/dmitrijs2005/scenekeeper/internal/server/models"
)

type Repository interface {
	Append(ctx context.Context, rec *models.AuditRecord) error
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, rec *models.AuditRecord) error {
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	blob, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, action, actor_user_id, file_id, team_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := r.db.ExecContext(ctx, query,
		rec.ID, string(rec.Action), rec.ActorUserID, rec.FileID, rec.TeamID, blob, rec.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
