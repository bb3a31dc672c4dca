package catalog

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/MrWong99/compendium/internal/match"
)

// RecordIdentity is the identifier given to a record that declares none.
// ordinal counts earlier id-less records with the same category, clean name
// and version, in load order. Loading unchanged input therefore always
// yields the same identifiers.
func RecordIdentity(category, name string, version, ordinal int) string {
	return match.DeriveIdentity("record",
		match.Normalize(category), match.Normalize(name),
		strconv.Itoa(version), strconv.Itoa(ordinal))
}

// CollisionIdentity is the replacement for the n-th attempt to re-identify a
// record whose identifier old is already taken within category.
func CollisionIdentity(category, old string, n int) string {
	return match.DeriveIdentity("collision",
		match.Normalize(category), strings.ToLower(strings.TrimSpace(old)), strconv.Itoa(n))
}

// Prepare runs the load pre-pass over records and returns the records to
// hand to [Registry.LoadRecords] together with the number of errata links
// written.
//
// Embedded children are expanded in place, each ahead of its parent, so
// errata chains among children (and between children and top-level records)
// are linked like any other. Record categories are rewritten to their
// canonical names, every record without an identifier is given its
// [RecordIdentity], and [LinkRevisions] runs over the flattened list.
// Field maps are modified in place.
func (r *Registry) Prepare(records []Record) ([]Record, int) {
	return r.prepare(records, 0)
}

func (r *Registry) prepare(records []Record, depth int) ([]Record, int) {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = r.flatten(rec, depth, out)
	}
	for i := range out {
		r.assignIdentity(out[i])
	}
	return out, LinkRevisions(out)
}

// flatten appends rec's expanded children and then rec itself to out.
func (r *Registry) flatten(rec Record, depth int, out []Record) []Record {
	col := r.collectionFor(rec.CategoryName())
	if col == nil {
		return append(out, rec)
	}
	rec.Category = col.def.name
	if col.def.expand == nil || rec.expanded {
		return append(out, rec)
	}

	rec.expanded = true
	if depth >= maxExpandDepth {
		r.warnOnce("depth:"+col.def.name, slog.LevelError, "child expansion too deep; children ignored",
			"category", col.def.name, "name", rec.Name())
		return append(out, rec)
	}
	for _, child := range col.def.expand(rec) {
		child.child = true
		out = r.flatten(child, depth+1, out)
	}
	return append(out, rec)
}

// assignIdentity writes a derived identifier into an id-less record of a
// registered category.
func (r *Registry) assignIdentity(rec Record) {
	if rec.Fields == nil || rec.ID() != "" {
		return
	}
	col := r.collectionFor(rec.CategoryName())
	if col == nil {
		return
	}
	rec.Fields[FieldID] = r.nextIdentity(col.def.name, rec.Name(), rec.Version())
}

// nextIdentity returns the next [RecordIdentity] for the given key.
func (r *Registry) nextIdentity(category, name string, version int) string {
	key := match.Normalize(category) + "\x00" + match.Normalize(name) + "\x00" + strconv.Itoa(version)
	n := r.ordinals[key]
	r.ordinals[key] = n + 1
	return RecordIdentity(category, name, version, n)
}
