package catalog

import (
	"cmp"
	"slices"

	"github.com/MrWong99/compendium/internal/match"
)

// LinkRevisions fills in missing previous identifiers for errata chains.
//
// Records are grouped by category and normalized name. Within a group the
// chain order is: baselines (version 0), then revisions by ascending version,
// then removals by ascending magnitude. Every errata record without a
// previous id is linked to the record preceding it in that order. The group's
// records are written back into the slots the group occupied in records, so
// the interleaving of different groups is unchanged.
//
// Records in a chain that have no id are given their [RecordIdentity] so
// that the next link can point at them. LinkRevisions modifies records and
// their field maps in place and returns the number of links it wrote.
func LinkRevisions(records []Record) int {
	type groupKey struct{ category, name string }

	groups := make(map[groupKey][]int)
	var order []groupKey
	for i, rec := range records {
		k := groupKey{match.Normalize(rec.CategoryName()), match.Normalize(rec.Name())}
		if k.name == "" {
			continue
		}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	linked := 0
	for _, k := range order {
		slots := groups[k]
		if len(slots) < 2 {
			continue
		}

		chain := make([]Record, len(slots))
		for j, idx := range slots {
			chain[j] = records[idx]
		}
		slices.SortStableFunc(chain, func(a, b Record) int {
			return cmp.Compare(chainRank(a.Version()), chainRank(b.Version()))
		})

		ordinals := make(map[int]int)
		for j := range chain {
			if chain[j].ID() == "" && chain[j].Fields != nil {
				v := chain[j].Version()
				chain[j].Fields[FieldID] = RecordIdentity(chain[j].CategoryName(), chain[j].Name(), v, ordinals[v])
				ordinals[v]++
			}
			if j == 0 || chain[j].Version() == 0 || chain[j].PreviousID() != "" {
				continue
			}
			chain[j].SetPreviousID(chain[j-1].ID())
			linked++
		}

		for j, idx := range slots {
			records[idx] = chain[j]
		}
	}
	return linked
}

// chainRank maps a version to its position class in an errata chain.
// Removals sort after every revision.
func chainRank(v int) int {
	const removalBase = 1 << 30
	if v < 0 {
		return removalBase - v
	}
	return v
}
