package catalog_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/match"
)

func spell(fields map[string]any) catalog.Record {
	return catalog.Record{Category: "Spell", Fields: fields}
}

func names(es []*catalog.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Name
	}
	return out
}

func TestLoadRecords_ErrataChain(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	stats := r.LoadRecords([]catalog.Record{
		spell(map[string]any{"id": idA, "name": "Sleep", "version": 0}),
		spell(map[string]any{"id": idB, "name": "Sleep", "version": 1, "previous_id": idA}),
		spell(map[string]any{"id": idC, "name": "Sleep", "version": -1, "previousId": idB}),
	})

	if got := r.Filter("Spell", func(e *catalog.Entity) bool { return e.Name == "Sleep" }); len(got) != 0 {
		t.Fatalf("active Sleep entities = %v, want none", names(got))
	}
	sup := r.Superseded("Spell")
	if len(sup) != 2 || sup[0].ID != idA || sup[1].ID != idB {
		t.Fatalf("superseded = %v, want [A B]", sup)
	}
	if stats.Added != 1 || stats.Revised != 1 || stats.Removed != 1 {
		t.Errorf("stats = %+v, want 1 added, 1 revised, 1 removed", stats)
	}
}

func TestLoadRecords_RevisionReplacesInPlace(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	r.LoadRecords([]catalog.Record{
		spell(map[string]any{"id": idA, "name": "Aid"}),
		spell(map[string]any{"id": idB, "name": "Bless"}),
		spell(map[string]any{"id": idC, "name": "Command"}),
		spell(map[string]any{"id": idD, "name": "Bless", "version": 2, "previous_id": strings.ToUpper(idB), "text": "revised"}),
	})

	all := r.All("Spell")
	if got := names(all); strings.Join(got, ",") != "Aid,Bless,Command" {
		t.Fatalf("active order = %v, want [Aid Bless Command]", got)
	}
	if all[1].ID != idD {
		t.Errorf("Bless id = %q, want revision id %q", all[1].ID, idD)
	}
	if sup := r.Superseded("Spell"); len(sup) != 1 || sup[0].ID != idB {
		t.Errorf("superseded = %v, want [B]", sup)
	}
}

func TestLoadRecords_OrphanRevisionBecomesBaseline(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := newTestRegistry(t, &buf)
	stats := r.LoadRecords([]catalog.Record{
		spell(map[string]any{"id": idB, "name": "Haste", "version": 1, "previous_id": idA}),
	})

	if n := r.Len("Spell"); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
	if stats.OrphanRevisions != 1 {
		t.Errorf("OrphanRevisions = %d, want 1", stats.OrphanRevisions)
	}
	if !strings.Contains(buf.String(), "loaded as baselines") {
		t.Errorf("expected orphan warning in log, got:\n%s", buf.String())
	}
}

func TestLoadRecords_OrphanRemovalIsNoop(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	stats := r.LoadRecords([]catalog.Record{
		spell(map[string]any{"id": idA, "name": "Light"}),
		spell(map[string]any{"id": idC, "name": "Light", "version": -1, "previous_id": idB}),
	})

	if n := r.Len("Spell"); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
	if stats.OrphanRemovals != 1 {
		t.Errorf("OrphanRemovals = %d, want 1", stats.OrphanRemovals)
	}
	if len(r.Superseded("Spell")) != 0 {
		t.Error("superseded list should be empty")
	}
}

func TestLoadRecords_RoundTripIsIdempotent(t *testing.T) {
	t.Parallel()

	records := func() []catalog.Record {
		return []catalog.Record{
			spell(map[string]any{"id": idA, "name": "Shield"}),
			spell(map[string]any{"id": idB, "name": "Shield", "version": -1, "previous_id": idA}),
		}
	}

	snapshot := func(r *catalog.Registry) (int, []string) {
		var ids []string
		for _, e := range r.Superseded("Spell") {
			ids = append(ids, e.ID)
		}
		return r.Len("Spell"), ids
	}

	first := newTestRegistry(t, nil)
	first.LoadRecords(records())
	if _, ok := first.FindByValue("Spell", "Shield"); ok {
		t.Fatal("Shield should have been removed")
	}

	second := newTestRegistry(t, nil)
	second.LoadRecords(records())

	n1, s1 := snapshot(first)
	n2, s2 := snapshot(second)
	if n1 != n2 || strings.Join(s1, ",") != strings.Join(s2, ",") {
		t.Fatalf("state differs between identical loads: (%d, %v) vs (%d, %v)", n1, s1, n2, s2)
	}

	// Loading the same pair into an already loaded registry converges too.
	first.LoadRecords(records())
	if n := first.Len("Spell"); n != 0 {
		t.Fatalf("Len after reload = %d, want 0", n)
	}
}

func TestLoadRecords_UnknownCategoryLoggedOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := newTestRegistry(t, &buf)
	stats := r.LoadRecords([]catalog.Record{
		{Category: "Potion", Fields: map[string]any{"name": "Healing"}},
		{Category: "potion", Fields: map[string]any{"name": "Climbing"}},
		spell(map[string]any{"name": "Fireball"}),
	})

	if stats.UnknownCategory != 2 {
		t.Errorf("UnknownCategory = %d, want 2", stats.UnknownCategory)
	}
	if n := r.Len("Spell"); n != 1 {
		t.Errorf("Len(Spell) = %d, want 1", n)
	}
	if c := strings.Count(buf.String(), "unknown category"); c != 1 {
		t.Errorf("unknown category logged %d times, want 1", c)
	}

	buf.Reset()
	r.LoadRecords([]catalog.Record{{Category: "Potion", Fields: map[string]any{"name": "Flying"}}})
	if strings.Contains(buf.String(), "unknown category") {
		t.Errorf("unknown category logged again for a value already reported")
	}
}

func TestLoadRecords_MissingCategory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := newTestRegistry(t, &buf)
	stats := r.LoadRecords([]catalog.Record{
		{Fields: map[string]any{"name": "Mystery"}},
		{Fields: map[string]any{"name": "Enigma"}},
		{Fields: map[string]any{"name": "Riddle", "id": idA}},
		{Fields: map[string]any{"name": "Fly", "object_type": "Spell"}},
	})

	if stats.MissingCategory != 3 {
		t.Errorf("MissingCategory = %d, want 3", stats.MissingCategory)
	}
	if c := strings.Count(buf.String(), "without a category"); c != 1 {
		t.Errorf("missing category logged %d times, want 1 for differently named records", c)
	}

	buf.Reset()
	stats = r.LoadRecords([]catalog.Record{
		{Fields: map[string]any{"name": "Blank", "category": "  "}},
		{Fields: map[string]any{"name": "Also Blank", "category": ""}},
	})
	if stats.MissingCategory != 2 {
		t.Errorf("MissingCategory = %d, want 2", stats.MissingCategory)
	}
	if c := strings.Count(buf.String(), "without a category"); c != 2 {
		t.Errorf("blank category values logged %d times, want one per distinct value", c)
	}
	if _, ok := r.FindByValue("Spell", "fly"); !ok {
		t.Error("record with object_type should load")
	}
}

func TestLoadBatch_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  any
	}{
		{"map instead of list", map[string]any{"name": "Fireball"}},
		{"scalar", "Fireball"},
		{"list with scalar element", []any{map[string]any{"name": "Fireball"}, "oops"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRegistry(t, nil)
			stats := r.LoadBatch("Spell", tt.raw)
			if stats.MalformedBatches != 1 {
				t.Errorf("MalformedBatches = %d, want 1", stats.MalformedBatches)
			}
			if n := r.Len("Spell"); n != 0 {
				t.Errorf("Len = %d, want 0 (batch must not partially load)", n)
			}
		})
	}
}

func TestLoadBatch_Valid(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	stats := r.LoadBatch("Spells", []any{
		map[string]any{"name": "Fireball"},
		map[string]any{"name": "Fire Bolt"},
	})
	if stats.Added != 2 || r.Len("Spell") != 2 {
		t.Fatalf("stats = %+v, Len = %d; want 2 added", stats, r.Len("Spell"))
	}
}

func TestLoadRecords_ChildExpansion(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	stats := r.LoadRecords([]catalog.Record{{
		Category: "Bestiary",
		Fields: map[string]any{
			"name": "Goblin Warband",
			"creatures": []any{
				map[string]any{"name": "Goblin Boss"},
				map[string]any{"name": "Goblin"},
				"not a record",
			},
			"summary": "A rowdy band.",
		},
	}})

	if stats.Children != 2 {
		t.Errorf("Children = %d, want 2", stats.Children)
	}
	if got := names(r.All("Creature")); strings.Join(got, ",") != "Goblin Boss,Goblin" {
		t.Errorf("creatures = %v", got)
	}
	band, ok := r.FindByValue("Bestiary", "goblin warband")
	if !ok {
		t.Fatal("parent record not loaded")
	}
	if _, ok := band.Content.Lookup("creatures"); ok {
		t.Error("child field should not be part of parent content")
	}
	if _, ok := band.Content.Lookup("summary"); !ok {
		t.Error("summary should be part of parent content")
	}
}

func TestLoadRecords_ChildrenLoadBeforeParent(t *testing.T) {
	t.Parallel()

	r := catalog.NewRegistry(catalog.WithLogger(quietLogger()), catalog.WithMetrics(nil))
	r.MustRegister("Feat", "Feats", catalog.WithChildren(func(parent catalog.Record) []catalog.Record {
		if parent.Name() != "Archetype" {
			return nil
		}
		return []catalog.Record{
			{Category: "Feat", Fields: map[string]any{"name": "Dedication"}},
			{Category: "Feat", Fields: map[string]any{"name": "Advanced"}},
		}
	}))

	r.LoadRecords([]catalog.Record{{Category: "Feat", Fields: map[string]any{"name": "Archetype"}}})
	if got := names(r.All("Feat")); strings.Join(got, ",") != "Dedication,Advanced,Archetype" {
		t.Fatalf("feat order = %v, want children first", got)
	}
}

func TestLoadRecords_RecursiveChildrenAreBounded(t *testing.T) {
	t.Parallel()

	r := catalog.NewRegistry(catalog.WithLogger(quietLogger()), catalog.WithMetrics(nil))
	r.MustRegister("Loop", "", catalog.WithChildren(func(parent catalog.Record) []catalog.Record {
		return []catalog.Record{{Category: "Loop", Fields: map[string]any{"name": "again"}}}
	}))

	r.LoadRecords([]catalog.Record{{Category: "Loop", Fields: map[string]any{"name": "start"}}})
	if n := r.Len("Loop"); n == 0 || n > 20 {
		t.Fatalf("Len = %d, want a bounded number of entities", n)
	}
}

func TestLoadRecords_BuildsEntity(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	r.LoadRecords([]catalog.Record{spell(map[string]any{
		"name":   "Fireball",
		"source": "PHB",
		"level":  3,
		"tags":   []any{"evocation", "fire"},
		"text":   "A bright streak flashes.",
	})})

	e, ok := r.FindByValue("Spell", "Fireball")
	if !ok {
		t.Fatal("Fireball not found")
	}
	if !match.IsIdentity(e.ID) {
		t.Errorf("generated id %q is not an identity", e.ID)
	}
	if e.Related != "PHB" {
		t.Errorf("Related = %q, want PHB", e.Related)
	}
	if !e.HasTrait("FIRE") {
		t.Errorf("traits = %v, want fire", e.Traits)
	}
	for _, reserved := range []string{"name", "source", "tags", "id"} {
		if _, ok := e.Content.Lookup(reserved); ok {
			t.Errorf("reserved key %q leaked into content", reserved)
		}
	}
	level, ok := e.Content.Lookup("level")
	if !ok || len(level.Children) != 1 || level.Children[0].Text != "3" {
		t.Errorf("level block = %+v", level)
	}
}

func TestLoadRecords_RepairsCollidingIDs(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	stats := r.LoadRecords([]catalog.Record{
		spell(map[string]any{"id": idA, "name": "Fireball"}),
		spell(map[string]any{"id": idA, "name": "Fire Shield"}),
		{Category: "Creature", Fields: map[string]any{"id": idA, "name": "Fire Elemental"}},
	})

	if stats.RepairedIDs != 1 {
		t.Fatalf("RepairedIDs = %d, want 1 (only same-category collisions)", stats.RepairedIDs)
	}
	all := r.All("Spell")
	if len(all) != 2 || match.IdentityMatch(all[0].ID, all[1].ID) {
		t.Fatalf("spell ids not unique: %v", all)
	}
	if all[0].ID != idA {
		t.Errorf("first entity kept id %q, want %q", all[0].ID, idA)
	}
}

func TestLoadRecords_SelfReferenceStillLoads(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	r := catalog.NewRegistry(
		catalog.WithLogger(slogTo(&buf)),
		catalog.WithMetrics(nil),
	)
	r.MustRegister("Region", "Regions", catalog.WithRelated("parent", "Region"))
	r.LoadRecords([]catalog.Record{{Category: "Region", Fields: map[string]any{"name": "Avistan", "parent": "avistan"}}})

	if r.Len("Region") != 1 {
		t.Fatal("self-referencing entity should still load")
	}
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("expected error-level log, got:\n%s", buf.String())
	}
}

func TestLoadStats_Merge(t *testing.T) {
	t.Parallel()

	a := catalog.LoadStats{Added: 1, UnknownCategory: 2}
	a.Merge(catalog.LoadStats{Added: 3, MissingCategory: 1, MalformedBatches: 1})
	if a.Added != 4 || a.Skipped() != 3 || a.MalformedBatches != 1 {
		t.Fatalf("merged = %+v", a)
	}
}
