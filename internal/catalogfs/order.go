package catalogfs

import (
	"log/slog"
	"slices"

	"github.com/MrWong99/compendium/internal/catalog"
)

// batch is every file of one category, in path order.
type batch struct {
	category string // canonical name; empty for files without a known category
	files    []*File
}

// orderBatches groups files by category and orders the groups so that every
// category is loaded after the category it references. Groups without a
// dependency relation are loaded in name order. Files whose category does
// not resolve (or is absent) come last, in path order, and are left to the
// registry to classify record by record.
func orderBatches(reg *catalog.Registry, files []*File, logger *slog.Logger) []batch {
	groups := make(map[string]*batch)
	var rest batch
	for _, f := range files {
		name, ok := reg.ResolveCategoryAlias(f.Category)
		if !ok {
			rest.files = append(rest.files, f)
			continue
		}
		b, ok := groups[name]
		if !ok {
			b = &batch{category: name}
			groups[name] = b
		}
		b.files = append(b.files, f)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(names))
	out := make([]batch, 0, len(names)+1)

	var visit func(name string)
	visit = func(name string) {
		switch state[name] {
		case done:
			return
		case visiting:
			logger.Warn("catalog categories reference each other; load order is by name", "category", name)
			return
		}
		state[name] = visiting
		if dep, ok := reg.RelatedCategory(name); ok && dep != name {
			if _, present := groups[dep]; present {
				visit(dep)
			}
		}
		state[name] = done
		out = append(out, *groups[name])
	}
	for _, name := range names {
		visit(name)
	}

	if len(rest.files) > 0 {
		out = append(out, rest)
	}
	return out
}
