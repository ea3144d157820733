// Package repomanager wires repository constructors to a database handle and
// exposes the schema migration hook.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/scenekeeper/internal/dbx"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/audit"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/files"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to the given DBTX, so services
// can run several repository calls inside one transaction via dbx.WithTx.
type RepositoryManager interface {
	Files(db dbx.DBTX) files.Repository
	Users(db dbx.DBTX) users.Repository
	Audit(db dbx.DBTX) audit.Repository
	RunMigrations(ctx context.Context, db *sql.DB) error
}
