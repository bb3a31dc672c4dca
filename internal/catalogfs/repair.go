package catalogfs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/compendium/internal/catalog"
	"github.com/MrWong99/compendium/internal/match"
)

// RepairOptions controls [Loader.RepairIDs].
type RepairOptions struct {
	// DryRun reports what would change without writing any file.
	DryRun bool

	// FillMissing also assigns identifiers to records that have none.
	FillMissing bool

	// Canonical maps a category as written to its canonical name, typically
	// [catalog.Registry.ResolveCategoryAlias]. With it, written identifiers
	// equal the ones a load derives in memory. When nil, categories are used
	// as written.
	Canonical func(category string) (string, bool)
}

// RepairReport summarises an identifier repair run.
type RepairReport struct {
	Regenerated int      // colliding identifiers replaced
	Filled      int      // missing identifiers assigned
	Files       []string // files that were (or, in a dry run, would be) rewritten
}

// Changed reports whether any identifier was touched.
func (r RepairReport) Changed() int { return r.Regenerated + r.Filled }

// RepairIDs scans every catalog file for records whose identifier collides
// with an earlier record of the same category and replaces the later
// identifier with its [catalog.CollisionIdentity]. Files are visited in path
// order, so the first occurrence always keeps its identifier. Missing
// identifiers are filled with the [catalog.RecordIdentity] a load would
// derive, so persisting them does not change what clients already saw.
// Changed files are rewritten in place; comments and key order are
// preserved.
func (l *Loader) RepairIDs(ctx context.Context, opts RepairOptions) (RepairReport, error) {
	paths, err := l.paths()
	if err != nil {
		return RepairReport{}, err
	}

	var rep RepairReport
	st := &repairState{
		canonical: opts.Canonical,
		ids:       make(map[string]map[string]struct{}),
		ordinals:  make(map[string]int),
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("catalogfs: repair ids: %w", err)
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return rep, fmt.Errorf("catalogfs: repair ids: %w", err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			l.logger.Warn("skipping unreadable catalog file", "path", p, "err", err)
			continue
		}

		regenerated, filled := st.repairDocument(&doc, opts.FillMissing)
		if regenerated+filled == 0 {
			continue
		}
		rep.Regenerated += regenerated
		rep.Filled += filled
		rel, _ := filepath.Rel(l.dir, p)
		rep.Files = append(rep.Files, filepath.ToSlash(rel))

		if opts.DryRun {
			continue
		}
		if err := writeNode(p, &doc); err != nil {
			return rep, err
		}
	}

	if rep.Changed() > 0 {
		l.logger.Info("repaired catalog identifiers",
			"regenerated", rep.Regenerated, "filled", rep.Filled, "files", len(rep.Files), "dry_run", opts.DryRun)
	}
	return rep, nil
}

// repairState carries what RepairIDs has seen across files.
type repairState struct {
	canonical func(string) (string, bool)
	ids       map[string]map[string]struct{} // normalized category -> lower-cased ids
	ordinals  map[string]int                 // derived identifier counters
}

func (st *repairState) category(written string) string {
	if st.canonical != nil {
		if name, ok := st.canonical(written); ok {
			return name
		}
	}
	return written
}

// repairDocument rewrites identifiers inside one decoded file.
func (st *repairState) repairDocument(doc *yaml.Node, fillMissing bool) (regenerated, filled int) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return 0, 0
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return 0, 0
	}

	fileCategory := ""
	if v := mappingValue(root, "category"); v != nil {
		fileCategory = v.Value
	}
	records := mappingValue(root, "records")
	if records == nil || records.Kind != yaml.SequenceNode {
		return 0, 0
	}

	for _, rec := range records.Content {
		if rec.Kind != yaml.MappingNode {
			continue
		}
		category := fileCategory
		if category == "" {
			if v := mappingValue(rec, catalog.FieldCategory); v != nil {
				category = v.Value
			} else if v := mappingValue(rec, catalog.FieldObjectType); v != nil {
				category = v.Value
			}
		}
		category = st.category(category)
		ids := st.ids[match.Normalize(category)]
		if ids == nil {
			ids = make(map[string]struct{})
			st.ids[match.Normalize(category)] = ids
		}

		idNode := mappingValue(rec, catalog.FieldID)
		switch {
		case idNode == nil || strings.TrimSpace(idNode.Value) == "":
			name := scalarValue(rec, catalog.FieldName)
			version, _ := strconv.Atoi(scalarValue(rec, catalog.FieldVersion))
			key := match.Normalize(category) + "\x00" + match.Normalize(name) + "\x00" + strconv.Itoa(version)
			n := st.ordinals[key]
			st.ordinals[key] = n + 1
			if !fillMissing {
				continue
			}
			id := catalog.RecordIdentity(category, name, version, n)
			if _, taken := ids[id]; taken {
				id = freeIdentity(ids, category, id)
			}
			setMappingValue(rec, catalog.FieldID, id)
			ids[id] = struct{}{}
			filled++

		default:
			key := strings.ToLower(strings.TrimSpace(idNode.Value))
			if _, dup := ids[key]; dup {
				idNode.Value = freeIdentity(ids, category, idNode.Value)
				idNode.Tag = "!!str"
				idNode.Style = 0
				key = idNode.Value
				regenerated++
			}
			ids[key] = struct{}{}
		}
	}
	return regenerated, filled
}

// freeIdentity returns the first [catalog.CollisionIdentity] for old that is
// not in ids.
func freeIdentity(ids map[string]struct{}, category, old string) string {
	for n := 0; ; n++ {
		id := catalog.CollisionIdentity(category, old, n)
		if _, taken := ids[id]; !taken {
			return id
		}
	}
}

// scalarValue returns the trimmed scalar stored under key, or "".
func scalarValue(m *yaml.Node, key string) string {
	if v := mappingValue(m, key); v != nil && v.Kind == yaml.ScalarNode {
		return strings.TrimSpace(v.Value)
	}
	return ""
}

// mappingValue returns the value node stored under key in a mapping node.
func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// setMappingValue sets key to a string value, inserting the key first in the
// mapping when it is absent.
func setMappingValue(m *yaml.Node, key, value string) {
	if v := mappingValue(m, key); v != nil {
		v.Value = value
		v.Tag = "!!str"
		return
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	v := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
	m.Content = append([]*yaml.Node{k, v}, m.Content...)
}

// writeNode encodes doc and atomically replaces path with it.
func writeNode(path string, doc *yaml.Node) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("catalogfs: encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("catalogfs: encode %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("catalogfs: stat %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".repair-*")
	if err != nil {
		return fmt.Errorf("catalogfs: write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("catalogfs: write %s: %w", path, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("catalogfs: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalogfs: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("catalogfs: replace %s: %w", path, err)
	}
	return nil
}
