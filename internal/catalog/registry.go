package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/compendium/internal/match"
	"github.com/MrWong99/compendium/internal/observe"
)

// ErrInvalidCategory is returned by [Registry.Register] when the category
// name is blank. It indicates a programming error in the caller.
var ErrInvalidCategory = errors.New("catalog: invalid category name")

// ErrAliasConflict is returned by [Registry.Register] when the name or plural
// of a new category already resolves to a different category.
var ErrAliasConflict = errors.New("catalog: category alias already in use")

// ExpandFunc returns the embedded child records of parent. Children are
// loaded before the parent itself.
type ExpandFunc func(parent Record) []Record

// CategoryOption configures a category at registration time.
type CategoryOption func(*category)

// WithRelated declares that field holds a reference, by name or identifier,
// to an entity of relatedCategory (for example a spell's "source").
func WithRelated(field, relatedCategory string) CategoryOption {
	return func(c *category) {
		c.relatedField = field
		c.relatedCategory = relatedCategory
	}
}

// WithChildren installs a child-expansion rule.
func WithChildren(fn ExpandFunc) CategoryOption {
	return func(c *category) {
		c.expand = fn
	}
}

// WithChildField is a convenience [WithChildren] rule: every map in the list
// stored under field becomes a record of childCategory, unless the child
// declares its own category.
func WithChildField(field, childCategory string) CategoryOption {
	return func(c *category) {
		c.childField = field
		c.expand = func(parent Record) []Record {
			list, ok := parent.Fields[field].([]any)
			if !ok {
				return nil
			}
			out := make([]Record, 0, len(list))
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				child := Record{Fields: m}
				if child.CategoryName() == "" {
					child.Category = childCategory
				}
				out = append(out, child)
			}
			return out
		}
	}
}

// category is the static definition of a registered category.
type category struct {
	name            string
	plural          string
	relatedField    string
	relatedCategory string
	childField      string
	expand          ExpandFunc
}

// collection is the live index of one category.
type collection struct {
	def        *category
	active     []*Entity
	superseded []*Entity
	ids        map[string]struct{} // lower-cased ids of active entities
}

// Registry maps categories to their collections. Construct it with
// [NewRegistry], register every category, then load records.
//
// Registration and loading are not safe for concurrent use. Once loading has
// finished all read methods are safe for concurrent use.
type Registry struct {
	collections map[string]*collection // keyed by normalized category name
	aliases     map[string]string      // normalized name or plural -> collections key

	logger  *slog.Logger
	metrics *observe.Metrics

	// ordinals counts derived identifiers per category, name and version.
	// Only loading touches it.
	ordinals map[string]int

	// warnMu guards warned. It is the only state mutated by read paths.
	warnMu sync.Mutex
	warned map[string]struct{}
}

// Option configures a [Registry].
type Option func(*Registry)

// WithLogger sets the logger used for load diagnostics. Defaults to
// [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns an empty [Registry].
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		collections: make(map[string]*collection),
		aliases:     make(map[string]string),
		logger:      slog.Default(),
		metrics:     observe.DefaultMetrics(),
		warned:      make(map[string]struct{}),
		ordinals:    make(map[string]int),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register creates the collections for a category. It is idempotent:
// registering a name that already exists leaves the existing collections and
// options untouched. plural may be empty.
//
// Returns [ErrInvalidCategory] for a blank name and [ErrAliasConflict] when
// the name or plural already belongs to another category.
func (r *Registry) Register(name, plural string, opts ...CategoryOption) error {
	name = strings.TrimSpace(name)
	plural = strings.TrimSpace(plural)
	key := match.Normalize(name)
	if key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, name)
	}

	if owner, ok := r.aliases[key]; ok {
		if owner == key {
			return nil
		}
		return fmt.Errorf("%w: %q is an alias of %q", ErrAliasConflict, name, r.collections[owner].def.name)
	}
	pluralKey := match.Normalize(plural)
	if pluralKey != "" {
		if owner, ok := r.aliases[pluralKey]; ok && owner != key {
			return fmt.Errorf("%w: plural %q is an alias of %q", ErrAliasConflict, plural, r.collections[owner].def.name)
		}
	}

	def := &category{name: name, plural: plural}
	for _, o := range opts {
		o(def)
	}
	r.collections[key] = &collection{def: def, ids: make(map[string]struct{})}
	r.aliases[key] = key
	if pluralKey != "" {
		r.aliases[pluralKey] = key
	}
	return nil
}

// MustRegister is like [Registry.Register] but panics on error.
func (r *Registry) MustRegister(name, plural string, opts ...CategoryOption) {
	if err := r.Register(name, plural, opts...); err != nil {
		panic(err)
	}
}

// ResolveCategoryAlias returns the canonical name of the category whose
// singular or plural form matches text, ignoring case, punctuation and
// extra whitespace.
func (r *Registry) ResolveCategoryAlias(text string) (string, bool) {
	col := r.collectionFor(text)
	if col == nil {
		return "", false
	}
	return col.def.name, true
}

// AllCategories returns the canonical names of every registered category,
// sorted.
func (r *Registry) AllCategories() []string {
	names := make([]string, 0, len(r.collections))
	for _, c := range r.collections {
		names = append(names, c.def.name)
	}
	slices.Sort(names)
	return names
}

// Plural returns the plural alias registered for category, or the canonical
// name when none was given.
func (r *Registry) Plural(category string) string {
	col := r.collectionFor(category)
	if col == nil {
		return ""
	}
	if col.def.plural != "" {
		return col.def.plural
	}
	return col.def.name
}

// RelatedCategory returns the category that entities of category reference
// through their related field, if one was declared. Loaders use it to load
// referenced categories first.
func (r *Registry) RelatedCategory(category string) (string, bool) {
	col := r.collectionFor(category)
	if col == nil || col.def.relatedCategory == "" {
		return "", false
	}
	return r.ResolveCategoryAlias(col.def.relatedCategory)
}

// Len returns the number of active entities in category.
func (r *Registry) Len(category string) int {
	col := r.collectionFor(category)
	if col == nil {
		return 0
	}
	return len(col.active)
}

// Superseded returns a copy of the entities that errata replaced or removed
// in category, in the order they were retired. Lookups and searches never
// consult this list.
func (r *Registry) Superseded(category string) []*Entity {
	col := r.collectionFor(category)
	if col == nil {
		return nil
	}
	return slices.Clone(col.superseded)
}

func (r *Registry) collectionFor(text string) *collection {
	key, ok := r.aliases[match.Normalize(text)]
	if !ok {
		return nil
	}
	return r.collections[key]
}

// warnOnce logs msg at level the first time key is seen.
func (r *Registry) warnOnce(key string, level slog.Level, msg string, args ...any) {
	r.warnMu.Lock()
	_, seen := r.warned[key]
	if !seen {
		r.warned[key] = struct{}{}
	}
	r.warnMu.Unlock()
	if !seen {
		r.logger.Log(context.Background(), level, msg, args...)
	}
}
