package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reload is an accepted edit of the configuration file.
type Reload struct {
	Old, New *Config
	Diff     ConfigDiff
}

// Watcher polls the configuration file and reports edits that parse,
// validate and change at least one setting. A rejected edit is logged once
// and the last good configuration stays current. Edits that only touch
// comments or formatting are absorbed without a callback, so they never
// cause a catalog rebuild.
type Watcher struct {
	path     string
	interval time.Duration
	onReload func(Reload)
	logger   *slog.Logger

	mu      sync.Mutex
	current *Config
	seen    fingerprint

	done     chan struct{}
	stopOnce sync.Once
}

// fingerprint identifies one version of the file on disk.
type fingerprint struct {
	mod  time.Time
	size int64
	sum  [sha256.Size]byte
}

func (f fingerprint) sameStat(info os.FileInfo) bool {
	return info.ModTime().Equal(f.mod) && info.Size() == f.size
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatcherLogger sets the logger. Defaults to [slog.Default].
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWatcher loads the configuration at path and starts polling it. The
// initial file must be valid. onReload may be nil.
func NewWatcher(path string, onReload func(Reload), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onReload: onReload,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := readConfig(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.seen = fp

	go w.poll()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops polling. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.Check()
		}
	}
}

// Check inspects the file once, as a poll tick does, and reports whether an
// edit was accepted and handed to the callback.
func (w *Watcher) Check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	unchanged := w.seen.sameStat(info)
	w.mu.Unlock()
	if unchanged {
		return false
	}

	cfg, fp, err := readConfig(w.path)
	if err != nil {
		// Remember the stat so the same broken edit is reported once.
		w.mu.Lock()
		w.seen.mod, w.seen.size = info.ModTime(), info.Size()
		w.mu.Unlock()
		w.logger.Warn("config reload rejected, keeping previous configuration", "path", w.path, "err", err)
		return false
	}

	w.mu.Lock()
	if fp.sum == w.seen.sum {
		w.seen = fp
		w.mu.Unlock()
		return false
	}
	rl := Reload{Old: w.current, New: cfg, Diff: Diff(w.current, cfg)}
	w.current = cfg
	w.seen = fp
	w.mu.Unlock()

	if rl.Diff.Empty() {
		w.logger.Debug("config file edited without changing settings", "path", w.path)
		return false
	}
	w.logger.Info("configuration reloaded",
		"path", w.path,
		"catalog", rl.Diff.CatalogChanged,
		"search", rl.Diff.SearchChanged,
		"restart_required", rl.Diff.RestartRequired,
	)

	// Outside the lock so the callback may call Current.
	if w.onReload != nil {
		w.onReload(rl)
	}
	return true
}

// readConfig parses and validates the file at path and fingerprints the
// bytes it read.
func readConfig(path string) (*Config, fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{mod: info.ModTime(), size: info.Size(), sum: sha256.Sum256(data)}, nil
}
