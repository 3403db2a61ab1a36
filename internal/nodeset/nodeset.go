// Package nodeset combines node collections: union, intersection and
// difference keyed by node identity.
package nodeset

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/query"
)

var (
	ErrTooFewLists = errors.New("set operation needs at least two lists")
	ErrUnsupported = errors.New("unsupported node list")
)

// Normalize turns nil, a *graph.Node, a []*graph.Node or a *query.Set into
// a node slice. The boolean is false for nil input.
func Normalize(list any) ([]*graph.Node, bool, error) {
	switch v := list.(type) {
	case nil:
		return nil, false, nil
	case *graph.Node:
		if v == nil {
			return nil, false, nil
		}
		return []*graph.Node{v}, true, nil
	case []*graph.Node:
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	case *query.Set:
		if v == nil {
			return nil, false, nil
		}
		return v.Nodes(), true, nil
	}
	return nil, false, fmt.Errorf("%w: %T", ErrUnsupported, list)
}

func normalizeAll(lists []any) ([][]*graph.Node, error) {
	out := make([][]*graph.Node, 0, len(lists))
	for i, l := range lists {
		nodes, ok, err := Normalize(l)
		if err != nil {
			return nil, fmt.Errorf("list %d: %w", i, err)
		}
		if ok {
			out = append(out, nodes)
		}
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewLists, len(out))
	}
	return out, nil
}

// Unify returns every node of every list once, in first-seen order. When a
// node's original and contextual overlays meet, they collapse into a single
// contextual node: overlay values win over the original's, and among
// overlays the later list wins.
func Unify(lists ...any) ([]*graph.Node, error) {
	norm, err := normalizeAll(lists)
	if err != nil {
		return nil, err
	}
	var order []uint32
	reps := make(map[uint32]*graph.Node)
	for _, nodes := range norm {
		for _, n := range nodes {
			if n == nil {
				continue
			}
			id := n.ID()
			cur, ok := reps[id]
			if !ok {
				order = append(order, id)
				reps[id] = n
				continue
			}
			reps[id] = merge(cur, n)
		}
	}
	out := make([]*graph.Node, len(order))
	for i, id := range order {
		out[i] = reps[id]
	}
	return out, nil
}

// merge folds next into cur. Plain originals never displace an overlay.
func merge(cur, next *graph.Node) *graph.Node {
	switch {
	case cur == next || !next.IsContextual():
		return cur
	case !cur.IsContextual():
		return next
	}
	m := cur.Contextual()
	for k, v := range next.Overrides() {
		m.Set(k, v)
	}
	return m
}

// Intersect returns the nodes of the first list present in every other
// list, in first-list order.
func Intersect(lists ...any) ([]*graph.Node, error) {
	norm, err := normalizeAll(lists)
	if err != nil {
		return nil, err
	}
	rest := make([]*roaring.Bitmap, 0, len(norm)-1)
	for _, nodes := range norm[1:] {
		rest = append(rest, ids(nodes))
	}
	var out []*graph.Node
	seen := roaring.New()
	for _, n := range norm[0] {
		if n == nil || !seen.CheckedAdd(n.ID()) {
			continue
		}
		inAll := true
		for _, bm := range rest {
			if !bm.Contains(n.ID()) {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, n)
		}
	}
	return out, nil
}

// Subtract returns the nodes of the first list absent from every other list.
func Subtract(lists ...any) ([]*graph.Node, error) {
	norm, err := normalizeAll(lists)
	if err != nil {
		return nil, err
	}
	drop := roaring.New()
	for _, nodes := range norm[1:] {
		drop.Or(ids(nodes))
	}
	var out []*graph.Node
	for _, n := range norm[0] {
		if n == nil || !drop.CheckedAdd(n.ID()) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func ids(nodes []*graph.Node) *roaring.Bitmap {
	bm := roaring.New()
	for _, n := range nodes {
		if n != nil {
			bm.Add(n.ID())
		}
	}
	return bm
}
