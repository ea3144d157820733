package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/scenekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the backend server (default from Config)
//	-f string   path to the local SQLite database
//	-w int      debounce quiet period in milliseconds
//	-i int      online check interval in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-f", "-w", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "base URL to access server")
	fs.StringVar(&cfg.DatabasePath, "f", cfg.DatabasePath, "path to local database")
	debounceInterval := fs.Int("w", int(cfg.DebounceInterval.Milliseconds()), "debounce quiet period (in milliseconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.DebounceInterval = time.Duration(*debounceInterval) * time.Millisecond
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
