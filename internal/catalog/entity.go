// Package catalog is the in-memory rules-content repository.
//
// A [Registry] owns one collection per registered category (Spell, Feat,
// Item, ...). Each collection holds the active entities visible to lookups
// and searches plus an append-only list of entities that errata records have
// superseded or removed.
//
// The registry is populated in a single load pass ([Registry.LoadRecords],
// [Registry.LoadBatch]) and is read-only afterwards. Reads need no locking
// because nothing mutates a loaded registry; hot reloading builds a fresh
// registry and swaps the reference instead.
//
// Data-quality problems never fail a load. Unknown categories, malformed
// batches, dangling errata and unresolved references are logged once and
// skipped so that one bad record cannot hide the rest of the catalog.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// Entity is one piece of rules content.
//
// Entities handed out by the registry are shared; callers must treat them as
// read-only.
type Entity struct {
	// ID is the stable, globally unique identifier.
	ID string `json:"id"`

	// Category is the canonical name of the collection the entity lives in.
	Category string `json:"category"`

	// Name is the display name, used for name lookups and as the primary
	// search surface.
	Name string `json:"name"`

	// Version is 0 for a baseline entity. Positive values mark a revision
	// that supersedes PreviousID, negative values a tombstone removing it.
	Version int `json:"version,omitempty"`

	// PreviousID is the entity this errata record supersedes or removes.
	PreviousID string `json:"previous_id,omitempty"`

	// Related is the raw declared value of the category's related field
	// (for example a source name). Resolve it with [Registry.Related].
	Related string `json:"related,omitempty"`

	// Traits are short labels used for filtering and as extra search surface.
	Traits []string `json:"traits,omitempty"`

	// Content is the structured payload scanned by deep search.
	Content Node `json:"content"`
}

// IsErrata reports whether e is a revision or removal record.
func (e *Entity) IsErrata() bool { return e.Version != 0 }

// IsRemoval reports whether e is a tombstone.
func (e *Entity) IsRemoval() bool { return e.Version < 0 }

// HasTrait reports whether e carries trait, compared case-insensitively.
func (e *Entity) HasTrait(trait string) bool {
	for _, t := range e.Traits {
		if strings.EqualFold(t, trait) {
			return true
		}
	}
	return false
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s %q (%s)", e.Category, e.Name, e.ID)
}

// Reserved raw record keys. Everything else in a record becomes content.
const (
	FieldID         = "id"
	FieldName       = "name"
	FieldCategory   = "category"
	FieldObjectType = "object_type"
	FieldVersion    = "version"
	FieldPreviousID = "previous_id"
	FieldPrevIDAlt  = "previousId"
	FieldTraits     = "traits"
	FieldTags       = "tags"
)

// Record is one raw catalog record as decoded from YAML or JSON, tagged with
// the category it was read under.
type Record struct {
	// Category is the category tag supplied by the loader. When empty the
	// record's own "category" or "object_type" field is used.
	Category string

	// Fields holds the decoded record.
	Fields map[string]any

	child    bool // produced by child expansion
	expanded bool // children already expanded by the pre-pass
}

// CategoryName returns the effective category tag of r.
func (r Record) CategoryName() string {
	if c := strings.TrimSpace(r.Category); c != "" {
		return c
	}
	if c := r.str(FieldCategory); c != "" {
		return c
	}
	return r.str(FieldObjectType)
}

// ID returns the record's identifier field, or "".
func (r Record) ID() string { return r.str(FieldID) }

// Name returns the record's display name, or "".
func (r Record) Name() string { return r.str(FieldName) }

// PreviousID returns the identifier this record supersedes, or "".
func (r Record) PreviousID() string {
	if v := r.str(FieldPreviousID); v != "" {
		return v
	}
	return r.str(FieldPrevIDAlt)
}

// SetPreviousID writes the previous identifier into the record. The record's
// field map is modified in place.
func (r Record) SetPreviousID(id string) {
	if r.Fields == nil {
		return
	}
	delete(r.Fields, FieldPrevIDAlt)
	r.Fields[FieldPreviousID] = id
}

// Version returns the record's errata version. Missing or unparsable values
// are treated as 0 (baseline).
func (r Record) Version() int {
	v, ok := r.Fields[FieldVersion]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}

// Traits returns the record's traits (or tags) as strings.
func (r Record) Traits() []string {
	v, ok := r.Fields[FieldTraits]
	if !ok {
		v = r.Fields[FieldTags]
	}
	list, ok := v.([]any)
	if !ok {
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) != "" {
			return []string{strings.TrimSpace(s)}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (r Record) str(key string) string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
