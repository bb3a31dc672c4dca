package catalog

import (
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/MrWong99/compendium/internal/match"
)

// All returns a copy of the active entities of category in load order. An
// unknown category yields nil.
func (r *Registry) All(category string) []*Entity {
	col := r.collectionFor(category)
	if col == nil {
		return nil
	}
	return slices.Clone(col.active)
}

// AllRelated returns the active entities of category whose related entity
// matches value. An entity matches when its declared related value, or the
// name of the entity that value resolves to, normalizes to the same string as
// value. Entities whose reference does not resolve are excluded.
func (r *Registry) AllRelated(category, value string) []*Entity {
	if match.Normalize(value) == "" {
		return nil
	}
	return r.Filter(category, func(e *Entity) bool {
		rel, ok := r.Related(e)
		if !ok {
			return false
		}
		return match.NormalizedMatch(rel.Name, value) ||
			match.NormalizedMatch(e.Related, value) ||
			sameID(rel.ID, value)
	})
}

// Filter returns the active entities of category for which keep reports true.
func (r *Registry) Filter(category string, keep func(*Entity) bool) []*Entity {
	var out []*Entity
	for _, e := range r.All(category) {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the first active entity of category for which pred reports
// true.
func (r *Registry) Find(category string, pred func(*Entity) bool) (*Entity, bool) {
	col := r.collectionFor(category)
	if col == nil {
		return nil, false
	}
	for _, e := range col.active {
		if pred(e) {
			return e, true
		}
	}
	return nil, false
}

// FindByID scans every category in sorted order and returns the first active
// entity whose identifier matches id. Identifiers compare as the loader
// compares them, so authored opaque identifiers are found too.
func (r *Registry) FindByID(id string) (*Entity, bool) {
	if strings.TrimSpace(id) == "" {
		r.logger.Debug("catalog lookup by blank identifier")
		return nil, false
	}
	for _, name := range r.AllCategories() {
		if e, ok := r.findID(r.collectionFor(name), id); ok {
			return e, true
		}
	}
	r.logger.Debug("no catalog entity with identifier", "id", id)
	return nil, false
}

// FindByValue looks value up within category. Identity-shaped values are
// matched against identifiers. Anything else is matched against names via
// [match.NormalizedMatch] first and then against opaque identifiers. Blank
// values never match.
func (r *Registry) FindByValue(category, value string) (*Entity, bool) {
	col := r.collectionFor(category)
	if col == nil {
		return nil, false
	}
	if match.IsIdentity(value) {
		return r.findID(col, value)
	}
	key := match.Normalize(value)
	if key == "" {
		return nil, false
	}
	for _, e := range col.active {
		if match.Normalize(e.Name) == key {
			return e, true
		}
	}
	return r.findID(col, value)
}

// Random returns a uniformly chosen active entity of category. When pred is
// non-nil only entities satisfying it are considered.
func (r *Registry) Random(category string, pred func(*Entity) bool) (*Entity, bool) {
	pool := r.All(category)
	if pred != nil {
		pool = slices.DeleteFunc(pool, func(e *Entity) bool { return !pred(e) })
	}
	if len(pool) == 0 {
		return nil, false
	}
	return pool[rand.IntN(len(pool))], true
}

// Related resolves e's declared related value to an entity of the category's
// related category. A value that resolves to nothing is logged once per
// distinct value.
func (r *Registry) Related(e *Entity) (*Entity, bool) {
	if e == nil || e.Related == "" {
		return nil, false
	}
	col := r.collectionFor(e.Category)
	if col == nil || col.def.relatedCategory == "" {
		return nil, false
	}
	rel, ok := r.FindByValue(col.def.relatedCategory, e.Related)
	if !ok {
		r.warnOnce("related:"+col.def.relatedCategory+":"+match.Normalize(e.Related), slog.LevelWarn,
			"catalog reference does not resolve",
			"category", col.def.name, "related_category", col.def.relatedCategory, "value", e.Related)
		return nil, false
	}
	return rel, true
}

func (r *Registry) findID(col *collection, id string) (*Entity, bool) {
	if col == nil {
		return nil, false
	}
	if i := col.indexOf(id); i >= 0 {
		return col.active[i], true
	}
	return nil, false
}
