package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

func (a *App) getStatus() string {
	s := ""
	if a.email != "" {
		s = a.email + " "
	}
	s = s + string(a.Mode)
	if state := a.sync.State(); state != "" {
		s = s + " " + string(state)
	}
	return "(" + s + ")"
}

// Root runs the interactive session: it starts the connectivity watcher and
// hands control to the REPL until the user exits.
func (a *App) Root(ctx context.Context) {
	fmt.Println("Welcome to SceneKeeper CLI (type 'help' for commands)")

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
