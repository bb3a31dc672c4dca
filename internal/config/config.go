// Package config provides the configuration schema, loader, validation and
// file watcher for the Compendium server.
package config

import "time"

// LogLevel controls log verbosity for the Compendium server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// MCPTransport selects how the MCP tool server is exposed.
type MCPTransport string

const (
	// TransportNone disables the MCP server.
	TransportNone MCPTransport = "none"

	// TransportStdio serves MCP over the process's stdin/stdout.
	TransportStdio MCPTransport = "stdio"

	// TransportStreamableHTTP serves MCP on the HTTP listener under /mcp.
	TransportStreamableHTTP MCPTransport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t MCPTransport) IsValid() bool {
	switch t {
	case TransportNone, TransportStdio, TransportStreamableHTTP:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultCatalogDir     = "./catalog"
	DefaultConcurrency    = 8
	DefaultExactWeight    = 100
	DefaultFuzzyThreshold = 0.80
	DefaultMaxResults     = 25
	DefaultServiceName    = "compendium"
)

// Config is the root configuration structure for Compendium.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Search    SearchConfig    `yaml:"search"`
	MCP       MCPConfig       `yaml:"mcp"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for health, metrics and streamable-HTTP
	// MCP (e.g., ":8080"). Empty disables the HTTP listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CatalogConfig describes where catalog records live and which categories
// exist.
type CatalogConfig struct {
	// Dir is the directory of *.yaml / *.yml catalog files, read recursively.
	Dir string `yaml:"dir"`

	// Concurrency is the number of files read in parallel.
	Concurrency int `yaml:"concurrency"`

	// WatchInterval is how often the catalog directory is checked for
	// changes. Zero disables catalog hot reload.
	WatchInterval time.Duration `yaml:"watch_interval"`

	// Categories lists every category records may use. When empty,
	// [DefaultCategories] is used.
	Categories []CategoryConfig `yaml:"categories"`
}

// CategoryConfig declares one catalog category.
type CategoryConfig struct {
	// Name is the canonical singular name (e.g., "Spell").
	Name string `yaml:"name"`

	// Plural is an optional alias (e.g., "Spells").
	Plural string `yaml:"plural"`

	// Related names the field referencing another category's entity by
	// value, such as a spell's source.
	Related RelationConfig `yaml:"related"`

	// Children names the field holding embedded records of another
	// category, such as the creatures of a bestiary.
	Children RelationConfig `yaml:"children"`
}

// RelationConfig pairs a record field with the category it refers to.
type RelationConfig struct {
	Field    string `yaml:"field"`
	Category string `yaml:"category"`
}

// IsZero reports whether the relation is unset.
func (r RelationConfig) IsZero() bool { return r.Field == "" && r.Category == "" }

// SearchConfig tunes the ranking engine.
type SearchConfig struct {
	// ExactWeight is the hit count credited to an exact name match.
	ExactWeight int `yaml:"exact_weight"`

	// FuzzyThreshold is the minimum Jaro-Winkler similarity, in (0, 1], for
	// "did you mean" suggestions.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`

	// MaxResults caps the scores per query. Zero selects the default; a
	// negative value means unlimited.
	MaxResults int `yaml:"max_results"`
}

// Limit returns the engine result cap, where 0 means unlimited.
func (s SearchConfig) Limit() int {
	if s.MaxResults < 0 {
		return 0
	}
	return s.MaxResults
}

// MCPConfig configures the MCP tool server.
type MCPConfig struct {
	Transport MCPTransport `yaml:"transport"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is the OTel resource service name.
	ServiceName string `yaml:"service_name"`

	// Metrics enables the Prometheus /metrics endpoint.
	Metrics bool `yaml:"metrics"`
}

// DefaultCategories returns the categories used when the configuration
// declares none.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{Name: "Source", Plural: "Sources"},
		{Name: "Spell", Plural: "Spells", Related: RelationConfig{Field: "source", Category: "Source"}},
		{Name: "Feat", Plural: "Feats", Related: RelationConfig{Field: "source", Category: "Source"}},
		{Name: "Item", Plural: "Items", Related: RelationConfig{Field: "source", Category: "Source"}},
		{Name: "Condition", Plural: "Conditions"},
		{Name: "Creature", Plural: "Creatures", Related: RelationConfig{Field: "source", Category: "Source"}},
		{Name: "Bestiary", Plural: "Bestiaries", Children: RelationConfig{Field: "creatures", Category: "Creature"}},
	}
}

// ApplyDefaults fills unset fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Catalog.Dir == "" {
		cfg.Catalog.Dir = DefaultCatalogDir
	}
	if cfg.Catalog.Concurrency == 0 {
		cfg.Catalog.Concurrency = DefaultConcurrency
	}
	if len(cfg.Catalog.Categories) == 0 {
		cfg.Catalog.Categories = DefaultCategories()
	}
	if cfg.Search.ExactWeight == 0 {
		cfg.Search.ExactWeight = DefaultExactWeight
	}
	if cfg.Search.FuzzyThreshold == 0 {
		cfg.Search.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.Search.MaxResults == 0 {
		cfg.Search.MaxResults = DefaultMaxResults
	}
	if cfg.MCP.Transport == "" {
		cfg.MCP.Transport = TransportNone
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
