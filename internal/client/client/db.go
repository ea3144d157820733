// Package client opens the local SQLite database, applies migrations, and
// vends the repositories the sync coordinator works with.
package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/scenekeeper/internal/client/migrations"
	"github.com/dmitrijs2005/scenekeeper/internal/client/repositories/localcache"
	"github.com/dmitrijs2005/scenekeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/scenekeeper/internal/client/repositories/pendingops"
)

type Repositories struct {
	Cache    localcache.Repository
	Queue    pendingops.Repository
	Metadata metadata.Repository
	DB       *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	return &Repositories{
		Cache:    localcache.NewSQLiteRepository(db),
		Queue:    pendingops.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
		DB:       db,
	}, nil
}
