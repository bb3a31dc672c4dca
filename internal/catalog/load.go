package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/compendium/internal/match"
	"github.com/MrWong99/compendium/internal/observe"
)

// ErrMalformedBatch describes a batch that was not a list of records. It is
// logged, never returned by the loader; callers may use it to classify
// batches themselves via [CheckBatch].
var ErrMalformedBatch = errors.New("catalog: batch is not a list of records")

// maxExpandDepth bounds child expansion so that a self-embedding record
// cannot recurse forever.
const maxExpandDepth = 8

// LoadStats summarises one load pass.
type LoadStats struct {
	Added            int // baseline entities appended
	Revised          int // revisions that replaced an active entity
	Removed          int // tombstones that removed an active entity
	OrphanRevisions  int // revisions whose previous id matched nothing; appended as baselines
	OrphanRemovals   int // tombstones whose previous id matched nothing
	Children         int // records produced by child expansion
	RepairedIDs      int // colliding identifiers regenerated in memory
	UnknownCategory  int
	MissingCategory  int
	MalformedBatches int
}

// Merge adds o into s.
func (s *LoadStats) Merge(o LoadStats) {
	s.Added += o.Added
	s.Revised += o.Revised
	s.Removed += o.Removed
	s.OrphanRevisions += o.OrphanRevisions
	s.OrphanRemovals += o.OrphanRemovals
	s.Children += o.Children
	s.RepairedIDs += o.RepairedIDs
	s.UnknownCategory += o.UnknownCategory
	s.MissingCategory += o.MissingCategory
	s.MalformedBatches += o.MalformedBatches
}

// Skipped returns the number of records that were not loaded at all.
func (s LoadStats) Skipped() int {
	return s.UnknownCategory + s.MissingCategory
}

// CheckBatch reports whether raw has the shape of a record batch and returns
// its records tagged with category.
func CheckBatch(category string, raw any) ([]Record, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrMalformedBatch, raw)
	}
	records := make([]Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %T", ErrMalformedBatch, i, item)
		}
		records = append(records, Record{Category: category, Fields: m})
	}
	return records, nil
}

// LoadBatch loads a decoded batch (expected to be a list of maps) under
// category. A malformed batch is logged and skipped entirely; nothing from it
// is loaded.
func (r *Registry) LoadBatch(category string, raw any) LoadStats {
	records, err := CheckBatch(category, raw)
	if err != nil {
		r.logger.Warn("skipping malformed catalog batch", "category", category, "err", err)
		return LoadStats{MalformedBatches: 1}
	}
	return r.LoadRecords(records)
}

// LoadRecords loads records in order. Records for one category must be
// supplied in the order their errata chains were written; categories
// referenced by value must be loaded before their dependents. Run
// [Registry.Prepare] first to link chains whose records omit previous ids.
func (r *Registry) LoadRecords(records []Record) LoadStats {
	var stats LoadStats
	for _, rec := range records {
		r.loadRecord(rec, &stats)
	}

	if stats.OrphanRevisions > 0 {
		r.logger.Warn("errata revisions did not match an active entity and were loaded as baselines",
			"count", stats.OrphanRevisions)
	}
	if stats.RepairedIDs > 0 {
		r.logger.Warn("regenerated colliding entity identifiers", "count", stats.RepairedIDs)
	}
	for _, col := range r.collections {
		r.metrics.RecordCatalogSize(context.Background(), col.def.name, len(col.active))
	}
	return stats
}

func (r *Registry) loadRecord(rec Record, stats *LoadStats) {
	ctx := context.Background()
	if rec.child {
		stats.Children++
	}

	catName := rec.CategoryName()
	if catName == "" {
		stats.MissingCategory++
		r.metrics.RecordCatalogRecord(ctx, "", observe.OutcomeMissing)
		// Absent, null and blank category values are reported separately.
		value := fmt.Sprintf("%#v/%#v", rec.Fields[FieldCategory], rec.Fields[FieldObjectType])
		r.warnOnce("missing:"+value, slog.LevelWarn, "skipping catalog records without a category",
			"name", rec.Name(), "id", rec.ID())
		return
	}

	col := r.collectionFor(catName)
	if col == nil {
		stats.UnknownCategory++
		r.metrics.RecordCatalogRecord(ctx, catName, observe.OutcomeUnknown)
		r.warnOnce("unknown:"+match.Normalize(catName), slog.LevelWarn, "skipping catalog record with unknown category",
			"category", catName)
		return
	}

	if col.def.expand != nil && !rec.expanded {
		children := col.def.expand(rec)
		for i := range children {
			children[i].child = true
		}
		children, _ = r.prepare(children, 1)
		for _, child := range children {
			r.loadRecord(child, stats)
		}
	}

	e := r.buildEntity(col.def, rec)
	outcome := r.resolve(col, e, stats)
	r.metrics.RecordCatalogRecord(ctx, col.def.name, outcome)
}

// buildEntity constructs a typed entity from rec.
func (r *Registry) buildEntity(def *category, rec Record) *Entity {
	skip := map[string]bool{
		FieldID: true, FieldName: true, FieldCategory: true, FieldObjectType: true,
		FieldVersion: true, FieldPreviousID: true, FieldPrevIDAlt: true,
		FieldTraits: true, FieldTags: true,
	}
	if def.relatedField != "" {
		skip[def.relatedField] = true
	}
	if def.childField != "" {
		skip[def.childField] = true
	}

	e := &Entity{
		ID:         rec.ID(),
		Category:   def.name,
		Name:       rec.Name(),
		Version:    rec.Version(),
		PreviousID: rec.PreviousID(),
		Traits:     rec.Traits(),
		Content:    contentFromFields(rec.Fields, skip),
	}
	if e.ID == "" {
		e.ID = r.nextIdentity(def.name, e.Name, e.Version)
	}
	if def.relatedField != "" {
		e.Related = rec.str(def.relatedField)
	}

	if e.Related != "" && match.NormalizedMatch(def.relatedCategory, def.name) &&
		(match.NormalizedMatch(e.Related, e.Name) || sameID(e.Related, e.ID)) {
		r.logger.Error("catalog entity declares itself as its own parent",
			"category", def.name, "name", e.Name, "id", e.ID, "field", def.relatedField)
	}
	return e
}

// resolve applies errata resolution for e and returns the outcome label.
func (r *Registry) resolve(col *collection, e *Entity, stats *LoadStats) string {
	if e.Version == 0 {
		r.ensureUniqueID(col, e, -1, stats)
		col.append(e)
		stats.Added++
		return observe.OutcomeAdded
	}

	i := col.indexOf(e.PreviousID)
	switch {
	case e.Version < 0 && i >= 0:
		old := col.active[i]
		col.removeAt(i)
		col.superseded = append(col.superseded, old)
		stats.Removed++
		return observe.OutcomeRemoved

	case e.Version < 0:
		stats.OrphanRemovals++
		r.logger.Debug("errata removal matched no active entity",
			"category", col.def.name, "name", e.Name, "previous_id", e.PreviousID)
		return observe.OutcomeOrphanRemoval

	case i >= 0:
		r.ensureUniqueID(col, e, i, stats)
		old := col.active[i]
		col.replaceAt(i, e)
		col.superseded = append(col.superseded, old)
		stats.Revised++
		return observe.OutcomeRevised

	default:
		r.ensureUniqueID(col, e, -1, stats)
		col.append(e)
		stats.OrphanRevisions++
		r.logger.Debug("errata revision matched no active entity; loading as baseline",
			"category", col.def.name, "name", e.Name, "previous_id", e.PreviousID)
		return observe.OutcomeOrphanRevision
	}
}

// ensureUniqueID regenerates e.ID when it collides with an active entity
// other than the one at position except.
func (r *Registry) ensureUniqueID(col *collection, e *Entity, except int, stats *LoadStats) {
	key := strings.ToLower(e.ID)
	if _, taken := col.ids[key]; !taken {
		return
	}
	if except >= 0 && strings.EqualFold(col.active[except].ID, e.ID) {
		return
	}
	old := e.ID
	for n := 0; ; n++ {
		id := CollisionIdentity(col.def.name, old, n)
		if _, taken := col.ids[id]; !taken {
			e.ID = id
			break
		}
	}
	stats.RepairedIDs++
	r.metrics.RecordCatalogRecord(context.Background(), col.def.name, observe.OutcomeRepairedID)
	r.logger.Debug("regenerated colliding entity identifier",
		"category", col.def.name, "name", e.Name, "old_id", old, "new_id", e.ID)
}

// indexOf returns the position of the active entity whose id matches id, or
// -1.
func (c *collection) indexOf(id string) int {
	if strings.TrimSpace(id) == "" {
		return -1
	}
	if _, ok := c.ids[strings.ToLower(strings.TrimSpace(id))]; !ok {
		return -1
	}
	for i, e := range c.active {
		if sameID(e.ID, id) {
			return i
		}
	}
	return -1
}

func (c *collection) append(e *Entity) {
	c.active = append(c.active, e)
	c.ids[strings.ToLower(e.ID)] = struct{}{}
}

func (c *collection) removeAt(i int) {
	delete(c.ids, strings.ToLower(c.active[i].ID))
	c.active = append(c.active[:i:i], c.active[i+1:]...)
}

func (c *collection) replaceAt(i int, e *Entity) {
	delete(c.ids, strings.ToLower(c.active[i].ID))
	c.active[i] = e
	c.ids[strings.ToLower(e.ID)] = struct{}{}
}

// sameID compares two identifiers ignoring case and surrounding space.
// Canonical and opaque authored identifiers ("spell-001") follow the same
// rule; blank identifiers never match.
func sameID(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
