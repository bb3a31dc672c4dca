package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/compendium/internal/match"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals. An empty document yields the default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Catalog
	if cfg.Catalog.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("catalog.concurrency %d must not be negative", cfg.Catalog.Concurrency))
	}
	if cfg.Catalog.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("catalog.watch_interval %s must not be negative", cfg.Catalog.WatchInterval))
	}
	errs = append(errs, validateCategories(cfg.Catalog.Categories)...)

	// Search
	if cfg.Search.ExactWeight < 0 {
		errs = append(errs, fmt.Errorf("search.exact_weight %d must not be negative", cfg.Search.ExactWeight))
	}
	if cfg.Search.FuzzyThreshold < 0 || cfg.Search.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("search.fuzzy_threshold %.2f is out of range [0, 1]", cfg.Search.FuzzyThreshold))
	}

	// MCP
	if cfg.MCP.Transport != "" && !cfg.MCP.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("mcp.transport %q is invalid; valid values: none, stdio, streamable-http", cfg.MCP.Transport))
	}
	if cfg.MCP.Transport == TransportStreamableHTTP && cfg.Server.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("mcp.transport %q requires server.listen_addr", cfg.MCP.Transport))
	}

	// Telemetry
	if cfg.Telemetry.Metrics && cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("telemetry.metrics requires server.listen_addr"))
	}

	return errors.Join(errs...)
}

// validateCategories checks names, aliases and cross references.
func validateCategories(cats []CategoryConfig) []error {
	var errs []error

	// Every singular and plural form, normalized, to the index declaring it.
	aliases := make(map[string]int, len(cats)*2)
	claim := func(i int, field, value string) {
		key := match.Normalize(value)
		if key == "" {
			return
		}
		if prev, ok := aliases[key]; ok && prev != i {
			errs = append(errs, fmt.Errorf("catalog.categories[%d].%s %q is already used by catalog.categories[%d]", i, field, value, prev))
			return
		}
		aliases[key] = i
	}

	for i, c := range cats {
		if match.Normalize(c.Name) == "" {
			errs = append(errs, fmt.Errorf("catalog.categories[%d].name is required", i))
			continue
		}
		claim(i, "name", c.Name)
		claim(i, "plural", c.Plural)
	}

	for i, c := range cats {
		for _, rel := range []struct {
			field string
			r     RelationConfig
		}{{"related", c.Related}, {"children", c.Children}} {
			if rel.r.IsZero() {
				continue
			}
			prefix := fmt.Sprintf("catalog.categories[%d].%s", i, rel.field)
			if rel.r.Field == "" {
				errs = append(errs, fmt.Errorf("%s.field is required", prefix))
			}
			if _, ok := aliases[match.Normalize(rel.r.Category)]; !ok {
				errs = append(errs, fmt.Errorf("%s.category %q is not a declared category", prefix, rel.r.Category))
			}
		}
	}
	return errs
}
