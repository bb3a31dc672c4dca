package catalog_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/match"
)

// idlessBatch returns fresh records without identifiers. Field maps are
// modified by loading, so every registry gets its own copy.
func idlessBatch() []catalog.Record {
	return []catalog.Record{
		{Category: "Sources", Fields: map[string]any{"name": "Player's Handbook"}},
		spell(map[string]any{"name": "Shield"}),
		spell(map[string]any{"name": "shield "}),
		spell(map[string]any{"name": "Mage Armor"}),
		spell(map[string]any{"name": "Mage Armor", "version": 1}),
		{Category: "Bestiary", Fields: map[string]any{
			"name":      "Warband",
			"creatures": []any{map[string]any{"name": "Goblin"}},
		}},
	}
}

func allIDs(r *catalog.Registry) []string {
	var ids []string
	for _, c := range r.AllCategories() {
		for _, e := range r.All(c) {
			ids = append(ids, e.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func TestIdentity_StableAcrossRegistries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		load func(r *catalog.Registry)
	}{
		{"prepared", func(r *catalog.Registry) {
			recs, _ := r.Prepare(idlessBatch())
			r.LoadRecords(recs)
		}},
		{"direct", func(r *catalog.Registry) { r.LoadRecords(idlessBatch()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			first, second := newTestRegistry(t, nil), newTestRegistry(t, nil)
			tt.load(first)
			tt.load(second)

			a, b := allIDs(first), allIDs(second)
			if len(a) == 0 || !slices.Equal(a, b) {
				t.Fatalf("ids differ between registries:\n%v\n%v", a, b)
			}
			for _, id := range a {
				if !match.IsIdentity(id) {
					t.Errorf("derived id %q is not an identity", id)
				}
				if _, ok := second.FindByID(id); !ok {
					t.Errorf("FindByID(%s) not found in second registry", id)
				}
			}
		})
	}
}

func TestIdentity_SameNameRecordsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	recs, _ := r.Prepare([]catalog.Record{
		spell(map[string]any{"name": "Light"}),
		spell(map[string]any{"name": "LIGHT"}),
	})
	if recs[0].ID() == recs[1].ID() {
		t.Fatalf("both records got id %s", recs[0].ID())
	}
	if want := catalog.RecordIdentity("Spell", "Light", 0, 0); recs[0].ID() != want {
		t.Errorf("first id = %s, want %s", recs[0].ID(), want)
	}
}

func TestIdentity_CollisionReplacementIsStable(t *testing.T) {
	t.Parallel()

	load := func() *catalog.Registry {
		r := newTestRegistry(t, nil)
		r.LoadRecords([]catalog.Record{
			spell(map[string]any{"id": idA, "name": "Fireball"}),
			spell(map[string]any{"id": idA, "name": "Fire Shield"}),
			spell(map[string]any{"id": idA, "name": "Wall of Fire"}),
		})
		return r
	}
	first, second := load(), load()

	a, b := allIDs(first), allIDs(second)
	if !slices.Equal(a, b) {
		t.Fatalf("repaired ids differ:\n%v\n%v", a, b)
	}
	e, ok := first.FindByValue("Spell", "Fire Shield")
	if !ok || e.ID != catalog.CollisionIdentity("Spell", idA, 0) {
		t.Errorf("Fire Shield id = %v, want first collision identity", e)
	}
	e, ok = first.FindByValue("Spell", "Wall of Fire")
	if !ok || e.ID != catalog.CollisionIdentity("Spell", idA, 1) {
		t.Errorf("Wall of Fire id = %v, want second collision identity", e)
	}
}

func TestPrepare_LinksEmbeddedErrata(t *testing.T) {
	t.Parallel()

	bestiary := func(creatures ...any) catalog.Record {
		return catalog.Record{Category: "Bestiary", Fields: map[string]any{
			"name":      "Goblin Warband",
			"creatures": creatures,
		}}
	}
	goblin := func(version int) map[string]any {
		return map[string]any{"name": "Goblin", "version": version, "hp": version + 7}
	}

	tests := []struct {
		name    string
		records func() []catalog.Record
		prepare bool
	}{
		{"siblings prepared", func() []catalog.Record {
			return []catalog.Record{bestiary(goblin(0), goblin(1))}
		}, true},
		{"siblings loaded directly", func() []catalog.Record {
			return []catalog.Record{bestiary(goblin(0), goblin(1))}
		}, false},
		{"top-level baseline, embedded revision", func() []catalog.Record {
			return []catalog.Record{
				{Category: "Creature", Fields: goblin(0)},
				bestiary(goblin(1)),
			}
		}, true},
		{"revision listed first", func() []catalog.Record {
			return []catalog.Record{bestiary(goblin(1), goblin(0))}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRegistry(t, nil)
			recs := tt.records()
			if tt.prepare {
				var links int
				recs, links = r.Prepare(recs)
				if links != 1 {
					t.Errorf("links = %d, want 1", links)
				}
			}
			stats := r.LoadRecords(recs)

			if stats.Revised != 1 || stats.OrphanRevisions != 0 {
				t.Errorf("stats = %+v, want one revision and no orphans", stats)
			}
			goblins := r.All("Creature")
			if len(goblins) != 1 || goblins[0].Version != 1 {
				t.Fatalf("active goblins = %+v, want only the revision", goblins)
			}
			if n := r.Len("Bestiary"); n != 1 {
				t.Errorf("Len(Bestiary) = %d, want 1", n)
			}
		})
	}
}

func TestPrepare_CountsChildrenOnce(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	recs, _ := r.Prepare([]catalog.Record{{Category: "Bestiaries", Fields: map[string]any{
		"name":      "Camp",
		"creatures": []any{map[string]any{"name": "Orc"}, map[string]any{"name": "Ogre"}},
	}}})
	if len(recs) != 3 || recs[2].Category != "Bestiary" {
		t.Fatalf("prepared = %+v, want children then the parent under its canonical category", recs)
	}

	stats := r.LoadRecords(recs)
	if stats.Children != 2 || stats.Added != 3 {
		t.Errorf("stats = %+v, want 2 children and 3 added", stats)
	}
	if got := names(r.All("Creature")); !slices.Equal(got, []string{"Orc", "Ogre"}) {
		t.Errorf("creatures = %v", got)
	}
}

func TestLookup_OpaqueIdentifiers(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t, nil)
	stats := r.LoadRecords([]catalog.Record{
		spell(map[string]any{"id": "spell-001", "name": "Shield"}),
		spell(map[string]any{"id": "spell-002", "name": "Shield", "version": 1, "previous_id": "spell-001"}),
		spell(map[string]any{"id": "spell-003", "name": "Light"}),
		spell(map[string]any{"id": "SPELL-003", "name": "Dancing Lights"}),
	})
	if stats.Revised != 1 || stats.RepairedIDs != 1 {
		t.Fatalf("stats = %+v, want one revision and one repaired id", stats)
	}

	for _, id := range []string{"spell-002", "SPELL-002", " spell-002 "} {
		e, ok := r.FindByID(id)
		if !ok || e.Version != 1 {
			t.Errorf("FindByID(%q) = %v, %v; want the revised Shield", id, e, ok)
		}
	}
	if e, ok := r.FindByValue("Spell", "spell-002"); !ok || e.Name != "Shield" {
		t.Errorf("FindByValue(Spell, spell-002) = %v, %v", e, ok)
	}
	if _, ok := r.FindByID("spell-001"); ok {
		t.Error("superseded id still resolves")
	}
	if _, ok := r.FindByValue("Creature", "spell-002"); ok {
		t.Error("opaque id resolved in the wrong category")
	}

	lights, ok := r.FindByValue("Spell", "Dancing Lights")
	if !ok || lights.ID != catalog.CollisionIdentity("Spell", "SPELL-003", 0) {
		t.Errorf("colliding opaque id = %v, want its collision identity", lights)
	}
}
