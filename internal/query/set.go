package query

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/agentic-research/trellis/internal/graph"
)

// Set is the deduplicated result of a traversal. Nodes are deduplicated by
// internal ID (a contextual node and its original count once, the first one
// added wins); scalars by value. Iteration follows insertion order so results
// are reproducible, but callers must not rely on any particular order.
type Set struct {
	ids     *roaring.Bitmap
	nodes   []*graph.Node
	scalars []any
	seen    map[any]struct{}
}

func NewSet() *Set {
	return &Set{ids: roaring.New(), seen: make(map[any]struct{})}
}

// SetOf builds a set from nodes.
func SetOf(nodes ...*graph.Node) *Set {
	s := NewSet()
	for _, n := range nodes {
		s.AddNode(n)
	}
	return s
}

// AddNode adds n and reports whether it was new.
func (s *Set) AddNode(n *graph.Node) bool {
	if n == nil || !s.ids.CheckedAdd(n.ID()) {
		return false
	}
	s.nodes = append(s.nodes, n)
	return true
}

// AddScalar adds a scalar and reports whether it was new.
func (s *Set) AddScalar(x any) bool {
	if x == nil {
		return false
	}
	if _, ok := s.seen[x]; ok {
		return false
	}
	s.seen[x] = struct{}{}
	s.scalars = append(s.scalars, x)
	return true
}

// AddValue flattens v into the set. Absent values contribute nothing.
func (s *Set) AddValue(v graph.Value) {
	switch v.Kind() {
	case graph.Scalar:
		s.AddScalar(v.Scalar())
	case graph.One, graph.Many:
		for _, n := range v.Nodes() {
			s.AddNode(n)
		}
	}
}

// Contains reports whether a node with n's identity is in the set.
func (s *Set) Contains(n *graph.Node) bool {
	return n != nil && s.ids.Contains(n.ID())
}

// ContainsScalar reports whether x is in the set.
func (s *Set) ContainsScalar(x any) bool {
	_, ok := s.seen[x]
	return ok
}

// Nodes returns the node members.
func (s *Set) Nodes() []*graph.Node {
	return append([]*graph.Node(nil), s.nodes...)
}

// Scalars returns the scalar members.
func (s *Set) Scalars() []any {
	return append([]any(nil), s.scalars...)
}

// IDs returns a copy of the node identity bitmap.
func (s *Set) IDs() *roaring.Bitmap {
	return s.ids.Clone()
}

// Len counts nodes and scalars.
func (s *Set) Len() int {
	return len(s.nodes) + len(s.scalars)
}

// IsEmpty reports whether the set has no members.
func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}

// Without returns a copy of s lacking the node with n's identity.
func (s *Set) Without(n *graph.Node) *Set {
	out := NewSet()
	for _, m := range s.nodes {
		if n != nil && m.ID() == n.ID() {
			continue
		}
		out.AddNode(m)
	}
	for _, x := range s.scalars {
		out.AddScalar(x)
	}
	return out
}
