// Package server initializes and runs the API server: it connects to
// PostgreSQL, applies migrations, wires repositories and services together,
// and serves the HTTP API until the context is cancelled.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/scenekeeper/internal/logging"
	"github.com/dmitrijs2005/scenekeeper/internal/server/access"
	"github.com/dmitrijs2005/scenekeeper/internal/server/audit"
	"github.com/dmitrijs2005/scenekeeper/internal/server/config"
	"github.com/dmitrijs2005/scenekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/scenekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/scenekeeper/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	api     *httpapi.Server
	limiter *httpapi.RateLimiter
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	ac := access.NewService(repos.Users(db))
	sink := audit.NewService(repos.Audit(db), logger)

	fileSvc := services.NewFileService(db, repos, ac, sink)
	userSvc := services.NewUserService(db, repos, sink, cfg)
	assetSvc := services.NewAssetService(db, repos, ac, sink, cfg)

	limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, time.Second)
	api := httpapi.NewServer(fileSvc, userSvc, assetSvc, limiter, logger)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		api:     api,
		limiter: limiter,
	}, nil
}

// Run serves the HTTP API until ctx is cancelled or an OS signal arrives,
// then shuts down gracefully.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.api.Handler(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info(ctx, "starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		app.logger.Info(context.Background(), "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	app.limiter.Stop()
	if cerr := app.db.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
