package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (listen address, MCP transport, telemetry) requires a restart.
type ConfigDiff struct {
	// CatalogChanged is true when the catalog must be rebuilt: its
	// directory or declared categories changed.
	CatalogChanged bool

	// SearchChanged is true when the ranking engine must be rebuilt.
	SearchChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists settings that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Catalog.Dir != new.Catalog.Dir ||
		old.Catalog.Concurrency != new.Catalog.Concurrency ||
		!slices.Equal(old.Catalog.Categories, new.Catalog.Categories) {
		d.CatalogChanged = true
	}

	if old.Search != new.Search {
		d.SearchChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Catalog.WatchInterval != new.Catalog.WatchInterval {
		d.RestartRequired = append(d.RestartRequired, "catalog.watch_interval")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

// Empty reports whether nothing the server uses changed.
func (d ConfigDiff) Empty() bool {
	return !d.CatalogChanged && !d.SearchChanged && !d.LogLevelChanged && len(d.RestartRequired) == 0
}
