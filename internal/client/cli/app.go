package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/client/api"
	"github.com/dmitrijs2005/scenekeeper/internal/client/client"
	"github.com/dmitrijs2005/scenekeeper/internal/client/config"
	"github.com/dmitrijs2005/scenekeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/scenekeeper/internal/client/syncer"
	"github.com/dmitrijs2005/scenekeeper/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type App struct {
	config *config.Config
	api    *api.Client
	repos  *client.Repositories
	sync   *syncer.Coordinator

	email      string
	Mode       Mode
	openFileID string
	reader     *bufio.Reader
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	repos, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	apiClient := api.NewClient(c.ServerEndpointAddr)

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	coord := syncer.NewCoordinator(apiClient, repos.Cache, repos.Queue, logger, c.DebounceInterval)
	coord.OnNotice = func(msg string) {
		fmt.Println("\n! " + msg)
	}

	a := &App{
		config: c,
		api:    apiClient,
		repos:  repos,
		sync:   coord,
		Mode:   ModeOffline,
		reader: bufio.NewReader(os.Stdin),
	}

	a.restoreSession(ctx)
	return a, nil
}

// restoreSession reinstalls a previously stored token so the user does not
// have to log in on every start.
func (a *App) restoreSession(ctx context.Context) {
	token, err := a.repos.Metadata.Get(ctx, metadata.KeyAuthToken)
	if err != nil || len(token) == 0 {
		return
	}
	a.api.SetToken(string(token))

	if email, err := a.repos.Metadata.Get(ctx, metadata.KeyEmail); err == nil {
		a.email = string(email)
	}
}

func (a *App) isLoggedIn() bool {
	return a.email != ""
}

func (a *App) setMode(mode Mode) {
	if a.Mode == mode {
		return
	}
	a.Mode = mode
	fmt.Printf("\nSwitched to %s mode\n", mode)

	// connectivity back: drain whatever queued up while offline
	if mode == ModeOnline {
		go a.sync.Replay(context.Background())
	}
}

// StartOnlineStatusWatcher periodically probes the server and flips the
// connectivity mode, triggering a replay when the server comes back.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := a.api.Ping(pingCtx)
			cancel()

			if err != nil {
				a.setMode(ModeOffline)
			} else {
				a.setMode(ModeOnline)
			}

		case <-ctx.Done():
			return
		}
	}
}

func (a *App) Run(ctx context.Context) {
	defer func() {
		a.sync.Close()
		_ = a.repos.DB.Close()
	}()
	a.Root(ctx)
}
