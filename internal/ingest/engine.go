// Package ingest imports type dictionaries and node data into a store and
// loads the payload files that carry them (JSON, CSV, SQLite, HCL).
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agentic-research/trellis/api"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/schema"
)

var (
	ErrUnknownProperty = errors.New("property type not in dictionary")
	ErrInvalidValue    = errors.New("invalid value for declared type")
	ErrMissingID       = errors.New("node has no id")
)

const (
	// IDColumn is the conventional name of a table's identity column.
	IDColumn = "id"
	// TargetSep separates a column's property URI from its target type.
	TargetSep = "->"
	// MultiSep separates target ids in a multi-valued association cell.
	MultiSep = "+"
)

// Importer writes typed data into a store. Every import call holds the
// store's writer lock for its duration.
type Importer struct {
	store *graph.Store
	dict  *schema.Dictionary
	log   *slog.Logger
}

func NewImporter(store *graph.Store) *Importer {
	return &Importer{store: store, dict: store.Dictionary(), log: store.Logger()}
}

// ImportTypes registers decls and resolves the hierarchy. All types of a
// batch are created before any super type link is checked.
func (im *Importer) ImportTypes(decls []api.TypeDecl) error {
	return im.store.Update(func() error {
		for _, decl := range decls {
			if _, err := im.dict.CreateType(decl); err != nil {
				return err
			}
		}
		if err := im.dict.ResolveSuperTypes(); err != nil {
			return err
		}
		im.log.Debug("imported types", "count", len(decls), "total", im.dict.Len())
		return nil
	})
}

// ImportPayload imports types, then tables, then raw nodes.
func (im *Importer) ImportPayload(p *api.Payload) error {
	if len(p.Types) > 0 {
		if err := im.ImportTypes(p.Types); err != nil {
			return fmt.Errorf("import types: %w", err)
		}
	}
	for _, tbl := range p.Tables {
		if _, err := im.ImportNodeTable(tbl); err != nil {
			return fmt.Errorf("import table %s: %w", tbl.Type, err)
		}
	}
	if len(p.Nodes) > 0 {
		if _, err := im.ImportNodes(p.Nodes); err != nil {
			return fmt.Errorf("import nodes: %w", err)
		}
	}
	return nil
}

type column struct {
	prop   *schema.Type
	target string
}

func (im *Importer) parseHeader(header []string) ([]column, error) {
	cols := make([]column, len(header))
	for i, h := range header {
		if i == 0 {
			continue
		}
		uri, target, _ := strings.Cut(strings.TrimSpace(h), TargetSep)
		t, ok := im.dict.Lookup(strings.TrimSpace(uri))
		if !ok {
			return nil, fmt.Errorf("%w: column %d %q", ErrUnknownProperty, i, uri)
		}
		cols[i] = column{prop: t, target: strings.TrimSpace(target)}
	}
	return cols, nil
}

// ImportNodeTable imports one table and returns the number of rows applied.
// HeaderRow[0] is the identity column. Empty cells never overwrite values
// and association cells hold one or more "+"-separated target ids.
func (im *Importer) ImportNodeTable(tbl api.NodeTable) (int, error) {
	if len(tbl.HeaderRow) == 0 {
		return 0, fmt.Errorf("%w: table %s has no header", ErrInvalidValue, tbl.Type)
	}
	var rows, created int
	err := im.store.Update(func() error {
		cols, err := im.parseHeader(tbl.HeaderRow)
		if err != nil {
			return err
		}
		for r, row := range tbl.ValueRows {
			if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
				im.log.Debug("skipping row without id", "type", tbl.Type, "row", r)
				continue
			}
			id := strings.TrimSpace(row[0])
			if _, ok := im.store.Find(tbl.Type, id); !ok {
				created++
			}
			n := im.store.GetNode(tbl.Type, id)
			for i := 1; i < len(row) && i < len(cols); i++ {
				cell := strings.TrimSpace(row[i])
				if cell == "" {
					continue
				}
				if err := im.applyCell(n, cols[i], cell); err != nil {
					return fmt.Errorf("row %d: %w", r, err)
				}
			}
			rows++
		}
		return nil
	})
	if err != nil {
		return rows, err
	}
	im.log.Debug("imported table", "type", tbl.Type, "rows", rows, "created", created)
	return rows, nil
}

func (im *Importer) applyCell(n *graph.Node, col column, cell string) error {
	if !isReference(col.prop) {
		v, err := im.coerce(col.prop, cell)
		if err != nil {
			return err
		}
		n.SetScalar(col.prop.URI, v)
		return nil
	}
	for _, id := range strings.Split(cell, MultiSep) {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		im.store.Associate(n, col.prop.URI, im.resolveRef(col.target, id), "")
	}
	return nil
}

// resolveRef finds the target of an association by id. Without a target
// type any node already registered under id is used, else a forward
// reference is created.
func (im *Importer) resolveRef(typeURI, id string) *graph.Node {
	return im.store.GetNode(typeURI, id)
}

// ImportNodes imports raw node objects and returns how many top-level nodes
// were applied.
func (im *Importer) ImportNodes(raw []api.RawNode) (int, error) {
	var count int
	err := im.store.Update(func() error {
		for i, rn := range raw {
			if _, err := im.importNode(rn); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	im.log.Debug("imported nodes", "rows", count)
	return count, nil
}

func (im *Importer) importNode(rn api.RawNode) (*graph.Node, error) {
	id := idString(rn[api.RawID])
	if id == "" {
		return nil, ErrMissingID
	}
	typeURI, _ := rn[api.RawType].(string)
	n := im.resolveRef(typeURI, id)

	for key, val := range rn {
		if key == api.RawID || key == api.RawType || val == nil {
			continue
		}
		t, ok := im.dict.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("%w: %q on %s", ErrUnknownProperty, key, id)
		}
		if !isReference(t) {
			if s, isStr := val.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			v, err := im.coerce(t, val)
			if err != nil {
				return nil, fmt.Errorf("%s on %s: %w", key, id, err)
			}
			n.SetScalar(key, v)
			continue
		}
		if err := im.importRefs(n, key, val); err != nil {
			return nil, fmt.Errorf("%s on %s: %w", key, id, err)
		}
	}
	return n, nil
}

// importRefs accepts an id, an embedded node object, or a list of either.
func (im *Importer) importRefs(n *graph.Node, assoc string, val any) error {
	switch v := val.(type) {
	case []any:
		for _, item := range v {
			if err := im.importRefs(n, assoc, item); err != nil {
				return err
			}
		}
	case []string:
		for _, item := range v {
			im.store.Associate(n, assoc, im.resolveRef("", item), "")
		}
	case map[string]any:
		tgt, err := im.importNode(v)
		if err != nil {
			return err
		}
		im.store.Associate(n, assoc, tgt, "")
	case api.RawNode:
		return im.importRefs(n, assoc, map[string]any(v))
	default:
		id := idString(v)
		if id == "" {
			return fmt.Errorf("%w: reference %v", ErrInvalidValue, val)
		}
		im.store.Associate(n, assoc, im.resolveRef("", id), "")
	}
	return nil
}

// isReference reports whether values of t are node references.
func isReference(t *schema.Type) bool {
	return t.IsAssociation || t.Kind == schema.KindEntity
}

func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	}
	return graph.FormatScalar(graph.ScalarValue(v).Scalar())
}
