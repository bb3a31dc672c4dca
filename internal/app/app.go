// Package app wires the Compendium subsystems into a running server.
//
// The App struct owns the full lifecycle: New loads the catalog and builds
// the HTTP and MCP surfaces, Run serves them and watches for changes, and
// Shutdown tears everything down in order.
//
// The served catalog is an immutable [Snapshot] held in an atomic pointer.
// Reloads build a complete replacement off to the side and swap it in, so
// readers never observe a partially loaded catalog.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/compendium/internal/catalogfs"
	"github.com/MrWong99/compendium/internal/config"
	"github.com/MrWong99/compendium/internal/health"
	"github.com/MrWong99/compendium/internal/mcp"
	"github.com/MrWong99/compendium/internal/mcp/tools"
	"github.com/MrWong99/compendium/internal/mcp/tools/ruleslookup"
	"github.com/MrWong99/compendium/internal/observe"
)

// Reload outcomes recorded on the reload counter.
const (
	reloadOK     = "ok"
	reloadFailed = "error"
)

// App owns all subsystem lifetimes.
type App struct {
	version string
	logger  *slog.Logger
	level   *slog.LevelVar
	metrics *observe.Metrics

	configPath string
	watcher    *config.Watcher

	// cfgMu guards cfg, which the config watcher replaces.
	cfgMu sync.RWMutex
	cfg   *config.Config

	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64

	// reloadMu serialises reloads and guards fingerprint.
	reloadMu    sync.Mutex
	fingerprint string

	errMu   sync.Mutex
	lastErr error

	telemetry *observe.Telemetry
	mcpServer *mcpsdk.Server
	handler   http.Handler
	http      *http.Server

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithVersion sets the version reported to MCP clients and in telemetry.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithLevelVar lets configuration reloads adjust the log level of the
// handler built around lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigFile makes Run watch path for configuration changes. The file
// must hold the configuration New was given.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// New creates an App from cfg and loads the catalog. It fails when the
// initial load fails; later reload failures keep the previous catalog.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		version: "dev",
		logger:  slog.Default(),
		metrics: observe.DefaultMetrics(),
		cfg:     cfg,
	}
	for _, o := range opts {
		o(a)
	}

	if cfg.Telemetry.Metrics {
		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: a.version,
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.telemetry = tel
	}

	if err := a.Reload(ctx); err != nil {
		return nil, err
	}

	a.mcpServer = mcp.NewServer(a.version, a.source(),
		ruleslookup.WithMetrics(a.metrics),
		ruleslookup.WithLogger(a.logger),
	)
	a.handler = a.buildHandler()
	return a, nil
}

// Snapshot returns the catalog currently being served.
func (a *App) Snapshot() *Snapshot { return a.current.Load() }

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg
}

// Handler returns the HTTP handler serving health, metrics and MCP routes.
func (a *App) Handler() http.Handler { return a.handler }

// MCPServer returns the MCP server carrying the catalog tools.
func (a *App) MCPServer() *mcpsdk.Server { return a.mcpServer }

// source adapts the snapshot pointer to the tool catalog view.
func (a *App) source() tools.Source {
	return func() tools.Catalog {
		if s := a.current.Load(); s != nil {
			return s
		}
		return nil
	}
}

func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	health.New(health.CatalogChecker(a.CatalogStatus)).Register(mux)
	if a.telemetry != nil {
		mux.Handle("GET /metrics", a.telemetry.MetricsHandler)
	}
	if a.Config().MCP.Transport == config.TransportStreamableHTTP {
		mux.Handle("/mcp", mcp.HTTPHandler(a.mcpServer))
	}
	return observe.Middleware(a.metrics)(mux)
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload rebuilds the catalog from the current configuration and swaps it in.
// On failure the previously served catalog stays in place and the error is
// returned and reported by the readiness check.
func (a *App) Reload(ctx context.Context) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	return a.reloadLocked(ctx, a.Config())
}

func (a *App) reloadLocked(ctx context.Context, cfg *config.Config) error {
	loader := catalogfs.NewLoader(cfg.Catalog.Dir, catalogfs.WithLogger(a.logger))
	fp, fpErr := loader.Fingerprint()

	snap, err := Build(ctx, cfg, a.logger, a.metrics)
	if err != nil {
		a.setLastErr(err)
		a.metrics.RecordReload(ctx, reloadFailed)
		if a.current.Load() != nil {
			a.logger.Error("catalog reload failed, keeping previous catalog", "err", err)
		}
		return err
	}
	if fpErr == nil {
		a.fingerprint = fp
	}
	a.setLastErr(nil)
	a.current.Store(snap)
	gen := a.generation.Add(1)
	a.metrics.RecordReload(ctx, reloadOK)

	a.logger.Info("catalog ready",
		"generation", gen,
		"dir", cfg.Catalog.Dir,
		"files", snap.Summary.Files,
		"added", snap.Summary.Stats.Added,
		"skipped", snap.Summary.Stats.Skipped(),
	)
	return nil
}

// checkCatalog reloads when the catalog directory changed since the last
// successful load.
func (a *App) checkCatalog(ctx context.Context) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	cfg := a.Config()
	fp, err := catalogfs.NewLoader(cfg.Catalog.Dir, catalogfs.WithLogger(a.logger)).Fingerprint()
	if err != nil {
		a.logger.Warn("catalog watcher: cannot fingerprint directory", "dir", cfg.Catalog.Dir, "err", err)
		return
	}
	if fp == a.fingerprint {
		return
	}
	a.logger.Info("catalog watcher: change detected", "dir", cfg.Catalog.Dir)
	if err := a.reloadLocked(ctx, cfg); err != nil {
		// Wait for the next edit rather than retrying a broken catalog every tick.
		a.fingerprint = fp
	}
}

// onConfigChange applies a reloaded configuration file.
func (a *App) onConfigChange(ctx context.Context, old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		a.logger.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		a.logger.Warn("configuration changes need a restart to take effect", "settings", d.RestartRequired)
	}

	// Restart-only settings keep their running values.
	applied := *new
	applied.Server.ListenAddr = old.Server.ListenAddr
	applied.MCP = old.MCP
	applied.Telemetry = old.Telemetry
	applied.Catalog.WatchInterval = old.Catalog.WatchInterval

	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	if !d.CatalogChanged && !d.SearchChanged {
		a.setConfig(&applied)
		return
	}
	if err := a.reloadLocked(ctx, &applied); err != nil {
		a.logger.Warn("configuration reload rejected, keeping previous catalog", "err", err)
		return
	}
	a.setConfig(&applied)
}

func (a *App) setConfig(cfg *config.Config) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
}

func (a *App) setLastErr(err error) {
	a.errMu.Lock()
	a.lastErr = err
	a.errMu.Unlock()
}

// CatalogStatus reports the state of the served catalog for readiness
// checks.
func (a *App) CatalogStatus() health.CatalogStatus {
	a.errMu.Lock()
	lastErr := a.lastErr
	a.errMu.Unlock()

	st := health.CatalogStatus{Generation: a.generation.Load()}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	if s := a.current.Load(); s != nil {
		st.Loaded = true
		st.LoadedAt = s.LoadedAt
		st.Entities = s.Entities()
		st.Skipped = s.Summary.Stats.Skipped() + s.Summary.Stats.MalformedBatches
		st.Invalid = s.Summary.Invalid
	}
	return st
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the configured surfaces and blocks until ctx is cancelled, a
// server fails, or the stdio MCP client disconnects. It returns ctx.Err() on
// cancellation and nil on a stdio disconnect.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := a.Config()
	errCh := make(chan error, 1)

	if cfg.Server.ListenAddr != "" {
		ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", cfg.Server.ListenAddr, err)
		}
		a.http = &http.Server{Handler: a.handler, ReadHeaderTimeout: 10 * time.Second}
		a.logger.Info("http listening", "addr", ln.Addr().String())
		go func() {
			if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("app: http: %w", err)
			}
		}()
	}

	var stdioDone chan error
	if cfg.MCP.Transport == config.TransportStdio {
		stdioDone = make(chan error, 1)
		a.logger.Info("mcp serving on stdio")
		go func() { stdioDone <- mcp.ServeStdio(ctx, a.mcpServer) }()
	}

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath,
			func(rl config.Reload) { a.onConfigChange(ctx, rl.Old, rl.New) },
			config.WithWatcherLogger(a.logger),
		)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		a.watcher = w
	}

	var wg sync.WaitGroup
	if iv := cfg.Catalog.WatchInterval; iv > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.pollCatalog(ctx, iv)
		}()
	}

	a.logger.Info("compendium running",
		"version", a.version,
		"categories", len(a.Snapshot().AllCategories()),
		"mcp", cfg.MCP.Transport,
	)

	var err error
	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	case err = <-stdioDone:
		if err == nil {
			a.logger.Info("mcp stdio client disconnected")
		} else {
			err = fmt.Errorf("app: mcp stdio: %w", err)
		}
	}
	cancel()
	wg.Wait()
	return err
}

func (a *App) pollCatalog(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.checkCatalog(ctx)
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the watchers, drains the HTTP server and flushes telemetry.
// It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.http != nil {
			if err := a.http.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http: %w", err))
			}
		}
		if a.telemetry != nil {
			if err := a.telemetry.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("telemetry: %w", err))
			}
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("app: shutdown: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps a configured log level to its slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
