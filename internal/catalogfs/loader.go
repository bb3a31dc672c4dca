// Package catalogfs reads catalog records from a directory of YAML files and
// feeds them to a [catalog.Registry].
//
// Every *.yaml or *.yml file below the root directory is one batch:
//
//	category: Spell
//	records:
//	  - id: 3f2b8c1e-9d4a-4e6b-8f0a-1c2d3e4f5a6b
//	    name: Fireball
//	    source: PHB
//	    text: A bright streak flashes from your pointing finger...
//
// The top-level category may be omitted, in which case every record must
// carry its own "category" (or "object_type") field.
//
// Files are read concurrently but loaded sequentially: categories that others
// reference (for example Source for Spell) are loaded first, and within one
// category files are loaded in path order so that errata chains resolve the
// same way on every run.
package catalogfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/observe"
)

// ErrNotFound is returned when the catalog directory does not exist.
var ErrNotFound = errors.New("catalogfs: catalog directory not found")

const defaultConcurrency = 8

// File is one decoded catalog file.
type File struct {
	// Path is the file path relative to the catalog root, with forward
	// slashes.
	Path string `yaml:"-"`

	// Category is the category every record in the file belongs to. Empty
	// when records declare their own.
	Category string `yaml:"category"`

	// Records is the raw decoded batch. A well-formed batch is a list of
	// maps; anything else is rejected by the registry as malformed.
	Records any `yaml:"records"`
}

// Summary describes one directory load.
type Summary struct {
	Files    int
	Invalid  int // files that could not be decoded
	Links    int // previous ids filled in by the errata pre-pass
	Stats    catalog.LoadStats
	Duration time.Duration
}

// Option is a functional option for configuring a [Loader].
type Option func(*Loader)

// WithConcurrency sets how many files are read in parallel. Default: 8.
func WithConcurrency(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// Loader reads a catalog directory.
type Loader struct {
	dir         string
	concurrency int
	logger      *slog.Logger
}

// NewLoader returns a [Loader] for the catalog rooted at dir.
func NewLoader(dir string, opts ...Option) *Loader {
	l := &Loader{
		dir:         dir,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Dir returns the catalog root directory.
func (l *Loader) Dir() string { return l.dir }

// Load reads every catalog file and loads its records into reg.
//
// I/O errors abort the load and are returned. Files that are not valid YAML
// are logged, counted in [Summary.Invalid] and skipped; problems inside
// valid files are handled by the registry and reported in [Summary.Stats].
func (l *Loader) Load(ctx context.Context, reg *catalog.Registry) (sum Summary, err error) {
	start := time.Now()
	ctx, span := observe.StartLoadSpan(ctx, l.dir)
	defer func() {
		span.End(sum.Files, sum.Invalid, sum.Stats.Added, sum.Stats.Skipped(), err)
	}()

	files, invalid, err := l.ReadAll(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum = Summary{Files: len(files) + invalid, Invalid: invalid}
	for _, batch := range orderBatches(reg, files, l.logger) {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("catalogfs: load: %w", err)
		}
		var records []catalog.Record
		for _, f := range batch.files {
			if f.Records == nil {
				l.logger.Debug("catalog file has no records", "path", f.Path)
				continue
			}
			category := f.Category
			if batch.category != "" {
				category = batch.category
			}
			recs, err := catalog.CheckBatch(category, f.Records)
			if err != nil {
				l.logger.Warn("skipping malformed catalog file", "path", f.Path, "err", err)
				sum.Stats.MalformedBatches++
				continue
			}
			records = append(records, recs...)
		}
		prepared, links := reg.Prepare(records)
		sum.Links += links
		sum.Stats.Merge(reg.LoadRecords(prepared))
	}
	sum.Duration = time.Since(start)

	observe.Logger(ctx, l.logger).Info("catalog loaded",
		"dir", l.dir,
		"files", sum.Files,
		"added", sum.Stats.Added,
		"revised", sum.Stats.Revised,
		"removed", sum.Stats.Removed,
		"skipped", sum.Stats.Skipped(),
		"duration", sum.Duration,
	)
	return sum, nil
}

// ReadAll decodes every catalog file below the root directory, in path
// order. The second return value counts files that were skipped because they
// were not valid YAML.
func (l *Loader) ReadAll(ctx context.Context) ([]*File, int, error) {
	paths, err := l.paths()
	if err != nil {
		return nil, 0, err
	}

	files := make([]*File, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := l.readFile(p)
			if err != nil {
				var pe *fs.PathError
				if errors.As(err, &pe) {
					return err
				}
				l.logger.Warn("skipping unreadable catalog file", "path", p, "err", err)
				return nil
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("catalogfs: read %s: %w", l.dir, err)
	}

	out := slices.DeleteFunc(files, func(f *File) bool { return f == nil })
	return out, len(paths) - len(out), nil
}

// paths lists catalog files below the root, sorted.
func (l *Loader) paths() ([]string, error) {
	info, err := os.Stat(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, l.dir)
	}
	if err != nil {
		return nil, fmt.Errorf("catalogfs: stat %s: %w", l.dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalogfs: %s is not a directory", l.dir)
	}

	var paths []string
	err = filepath.WalkDir(l.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != l.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isCatalogFile(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalogfs: walk %s: %w", l.dir, err)
	}
	slices.Sort(paths)
	return paths, nil
}

func (l *Loader) readFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	f, err := Decode(fh)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(l.dir, path)
	if err != nil {
		rel = path
	}
	f.Path = filepath.ToSlash(rel)
	return f, nil
}

// Decode parses one catalog file. Unknown top-level keys are rejected.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("catalogfs: decode yaml: %w", err)
	}
	return &f, nil
}

func isCatalogFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return !strings.HasPrefix(name, ".")
	}
	return false
}
