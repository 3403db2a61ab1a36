package ingest

import (
	"fmt"
	"os"

	"github.com/agentic-research/trellis/api"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// Selectors are the JSONPath expressions that pick the payload sections out
// of a backend document. An empty selector skips the section.
type Selectors struct {
	Types  string
	Tables string
	Nodes  string
}

// DefaultSelectors match a {types, tables, nodes} document.
var DefaultSelectors = Selectors{
	Types:  "$.types[*]",
	Tables: "$.tables[*]",
	Nodes:  "$.nodes[*]",
}

// JSONWalker evaluates JSONPath selectors against parsed JSON.
type JSONWalker struct {
	cache map[string]jp.Expr
}

func NewJSONWalker() *JSONWalker {
	return &JSONWalker{cache: make(map[string]jp.Expr)}
}

// Query returns every value matched by selector.
func (w *JSONWalker) Query(root any, selector string) ([]any, error) {
	x, ok := w.cache[selector]
	if !ok {
		var err error
		x, err = jp.ParseString(selector)
		if err != nil {
			return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
		}
		w.cache[selector] = x
	}
	return x.Get(root), nil
}

// LoadJSON reads and parses a payload file with DefaultSelectors.
func LoadJSON(path string) (*api.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := ParseJSON(data, DefaultSelectors)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

// ParseJSON decodes a payload document. A document whose root is an array
// is read as a list of raw nodes.
func ParseJSON(data []byte, sel Selectors) (*api.Payload, error) {
	root, err := oj.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse json: %w", err)
	}
	p := &api.Payload{}
	if list, ok := root.([]any); ok {
		nodes, err := decodeNodes(list)
		if err != nil {
			return nil, err
		}
		p.Nodes = nodes
		return p, nil
	}

	w := NewJSONWalker()
	section := func(selector string) ([]any, error) {
		if selector == "" {
			return nil, nil
		}
		return w.Query(root, selector)
	}

	types, err := section(sel.Types)
	if err != nil {
		return nil, err
	}
	for i, v := range types {
		decl, err := decodeTypeDecl(v)
		if err != nil {
			return nil, fmt.Errorf("types[%d]: %w", i, err)
		}
		p.Types = append(p.Types, decl)
	}

	tables, err := section(sel.Tables)
	if err != nil {
		return nil, err
	}
	for i, v := range tables {
		tbl, err := decodeTable(v)
		if err != nil {
			return nil, fmt.Errorf("tables[%d]: %w", i, err)
		}
		p.Tables = append(p.Tables, tbl)
	}

	nodes, err := section(sel.Nodes)
	if err != nil {
		return nil, err
	}
	if p.Nodes, err = decodeNodes(nodes); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeTypeDecl(v any) (api.TypeDecl, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return api.TypeDecl{}, fmt.Errorf("%w: type declaration is %T", ErrInvalidValue, v)
	}
	decl := api.TypeDecl{
		URI:         str(m["uri"]),
		Name:        str(m["name"]),
		DataType:    api.DataType(str(m["dataType"])),
		SubClassOf:  str(m["subClassOf"]),
		InverseType: str(m["inverseType"]),
	}
	decl.IsAssociation, _ = m["isAssociation"].(bool)
	return decl, nil
}

func decodeTable(v any) (api.NodeTable, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return api.NodeTable{}, fmt.Errorf("%w: table is %T", ErrInvalidValue, v)
	}
	tbl := api.NodeTable{Type: str(m["type"])}
	header, _ := m["headerRow"].([]any)
	for _, h := range header {
		tbl.HeaderRow = append(tbl.HeaderRow, str(h))
	}
	rows, _ := m["valueRows"].([]any)
	for i, r := range rows {
		cells, ok := r.([]any)
		if !ok {
			return tbl, fmt.Errorf("%w: valueRows[%d] is %T", ErrInvalidValue, i, r)
		}
		row := make([]string, len(cells))
		for j, c := range cells {
			row[j] = str(c)
		}
		tbl.ValueRows = append(tbl.ValueRows, row)
	}
	return tbl, nil
}

func decodeNodes(list []any) ([]api.RawNode, error) {
	out := make([]api.RawNode, 0, len(list))
	for i, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: nodes[%d] is %T", ErrInvalidValue, i, v)
		}
		out = append(out, api.RawNode(m))
	}
	return out, nil
}

// str renders a JSON scalar as a table cell.
func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return idString(v)
}
