// Package config handles configuration for the client component,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the SceneKeeper client.
//
// Fields:
//   - ServerEndpointAddr: base URL of the backend HTTP API.
//   - DatabasePath: SQLite file for the local cache and pending-op queue.
//   - DebounceInterval: quiet period before a local edit is saved.
//   - OnlineCheckInterval: how often the client probes server reachability
//     while offline.
type Config struct {
	ServerEndpointAddr  string
	DatabasePath        string
	DebounceInterval    time.Duration
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabasePath = "scenekeeper.db"
	c.DebounceInterval = 1200 * time.Millisecond
	c.OnlineCheckInterval = 3 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
