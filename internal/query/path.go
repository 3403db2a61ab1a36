// Package query resolves slash-separated paths over a graph.Store.
//
// A path is a sequence of segments:
//
//	~TypeUri   replace the current set with every instance of the type (polymorphic)
//	#Uri       replace the current set with the node whose local URI is Uri
//	property   resolve the property on every member of the current set
//
// Traverse returns a deduplicated Set. ResolveProperty keeps a single
// current value and, when an intermediate hop yields several nodes, continues
// from the first one.
package query

import (
	"strings"

	"github.com/agentic-research/trellis/internal/graph"
)

const (
	Separator      = "/"
	TypeScanPrefix = "~"
	LookupPrefix   = "#"
)

// SegmentKind classifies one hop of a path.
type SegmentKind int

const (
	SegmentProperty SegmentKind = iota
	SegmentTypeScan
	SegmentLookup
)

// Segment is one parsed hop.
type Segment struct {
	Kind SegmentKind
	Name string
}

// Path is a parsed path. The zero Path resolves to its start.
type Path []Segment

// Compile splits a path into segments. Empty segments are skipped, so
// leading and trailing separators are harmless.
func Compile(path string) Path {
	var out Path
	for _, raw := range strings.Split(path, Separator) {
		raw = strings.TrimSpace(raw)
		switch {
		case raw == "":
			continue
		case strings.HasPrefix(raw, TypeScanPrefix):
			out = append(out, Segment{Kind: SegmentTypeScan, Name: raw[len(TypeScanPrefix):]})
		case strings.HasPrefix(raw, LookupPrefix):
			out = append(out, Segment{Kind: SegmentLookup, Name: raw[len(LookupPrefix):]})
		default:
			out = append(out, Segment{Kind: SegmentProperty, Name: raw})
		}
	}
	return out
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, seg := range p {
		switch seg.Kind {
		case SegmentTypeScan:
			parts[i] = TypeScanPrefix + seg.Name
		case SegmentLookup:
			parts[i] = LookupPrefix + seg.Name
		default:
			parts[i] = seg.Name
		}
	}
	return strings.Join(parts, Separator)
}

// Traverse walks path from source and returns the resulting set. source may
// be a *graph.Node, []*graph.Node, *Set, graph.Value, or a scalar, which is
// wrapped into a singleton set. store may be nil when the path has no ~ or #
// segments.
func Traverse(store *graph.Store, source any, path string) *Set {
	return Compile(path).Traverse(store, source)
}

// Traverse is the compiled form of the package-level Traverse.
func (p Path) Traverse(store *graph.Store, source any) *Set {
	cur := toSet(source)
	for _, seg := range p {
		next := NewSet()
		switch seg.Kind {
		case SegmentTypeScan:
			if store != nil {
				for _, n := range store.AllNodesOf(seg.Name) {
					next.AddNode(n)
				}
			}
		case SegmentLookup:
			if store != nil {
				if n, err := store.Lookup(seg.Name); err == nil {
					next.AddNode(n)
				}
			}
		default:
			for _, n := range cur.nodes {
				next.AddValue(n.Get(seg.Name))
			}
		}
		cur = next
	}
	return cur
}

// ResolveProperty walks path from node keeping one current value. When a
// non-final hop yields several nodes the first one is used; the choice
// follows insertion order and is not stable across re-imports that reorder
// edges. A scalar reached before the last hop resolves to absent.
func ResolveProperty(store *graph.Store, node *graph.Node, path string) graph.Value {
	return Compile(path).Resolve(store, node)
}

// Resolve is the compiled form of ResolveProperty.
func (p Path) Resolve(store *graph.Store, node *graph.Node) graph.Value {
	cur := graph.RefValue(node)
	for _, seg := range p {
		switch seg.Kind {
		case SegmentTypeScan:
			if store == nil {
				return graph.Value{}
			}
			cur = graph.ListValue(store.AllNodesOf(seg.Name))
		case SegmentLookup:
			if store == nil {
				return graph.Value{}
			}
			n, err := store.Lookup(seg.Name)
			if err != nil {
				return graph.Value{}
			}
			cur = graph.RefValue(n)
		default:
			at := cur.First()
			if at == nil {
				return graph.Value{}
			}
			cur = at.Get(seg.Name)
		}
		if cur.IsAbsent() {
			return cur
		}
	}
	return cur
}

// ResolveAttribute is ResolveProperty for human-readable text: a node
// result is replaced by its display name, several nodes by their names
// joined with ", ".
func ResolveAttribute(store *graph.Store, node *graph.Node, path string) graph.Value {
	return Compile(path).ResolveAttribute(store, node)
}

// ResolveAttribute is the compiled form of the package-level function.
func (p Path) ResolveAttribute(store *graph.Store, node *graph.Node) graph.Value {
	v := p.Resolve(store, node)
	switch v.Kind() {
	case graph.One, graph.Many:
		return graph.ScalarValue(v.String())
	}
	return v
}

func toSet(source any) *Set {
	switch src := source.(type) {
	case nil:
		return NewSet()
	case *Set:
		if src == nil {
			return NewSet()
		}
		return src
	case *graph.Node:
		return SetOf(src)
	case []*graph.Node:
		return SetOf(src...)
	case graph.Value:
		s := NewSet()
		s.AddValue(src)
		return s
	default:
		s := NewSet()
		s.AddValue(graph.ScalarValue(src))
		return s
	}
}
