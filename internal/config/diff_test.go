package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/compendium/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.CatalogChanged || d.SearchChanged {
		t.Errorf("unexpected changes: %+v", d)
	}
}

func TestDiff_CatalogChanged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"dir", func(c *config.Config) { c.Catalog.Dir = "/elsewhere" }},
		{"concurrency", func(c *config.Config) { c.Catalog.Concurrency = 1 }},
		{"category added", func(c *config.Config) {
			c.Catalog.Categories = append(c.Catalog.Categories, config.CategoryConfig{Name: "Deity"})
		}},
		{"relation changed", func(c *config.Config) {
			c.Catalog.Categories[1].Related.Field = "book"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old := config.Default()
			new := config.Default()
			tt.mutate(new)
			if d := config.Diff(old, new); !d.CatalogChanged {
				t.Errorf("expected CatalogChanged=true, got %+v", d)
			}
		})
	}
}

func TestDiff_SearchChanged(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Search.FuzzyThreshold = 0.9

	d := config.Diff(old, new)
	if !d.SearchChanged || d.CatalogChanged {
		t.Errorf("got %+v, want only SearchChanged", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9999"
	new.Catalog.WatchInterval = time.Minute
	new.MCP.Transport = config.TransportStdio

	d := config.Diff(old, new)
	want := []string{"server.listen_addr", "catalog.watch_interval", "mcp"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.Empty() {
		t.Error("restart-only changes reported as empty")
	}
}
