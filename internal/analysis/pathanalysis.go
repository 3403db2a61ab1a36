// Package analysis runs graph algorithms over a store: transitive path
// analysis along one association and association derivation.
//
// Both functions create nodes. Callers sharing the store with concurrent
// readers run them inside Store.Update.
package analysis

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/trellis/internal/aggregate"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/query"
)

// Properties written by PathAnalysis.
const (
	DepthProp        = "depth"
	PredecessorsProp = "predecessors"
	SuccessorsProp   = "successors"
	MaxDepthProp     = "maxDepth"
	NodesProp        = "nodes"
	// Member counts of the upstream and downstream aggregations.
	UpstreamCountProp   = "upstreamCount"
	DownstreamCountProp = "downstreamCount"
)

// PathOptions configures PathAnalysis.
type PathOptions struct {
	// Association is the path followed from each node, usually a single
	// association name.
	Association string
	// Upstream, if set, is run per touched node over its predecessors.
	Upstream *aggregate.Aggregator
	// Downstream, if set, is run per touched node over its successors.
	Downstream *aggregate.Aggregator
}

// Result is the outcome of PathAnalysis.
type Result struct {
	// Node is the synthetic analysis node holding maxDepth and the touched
	// nodes.
	Node *graph.Node
	// Nodes are contextual overlays of every touched node in discovery order,
	// carrying depth, predecessors, successors and aggregated fields.
	Nodes    []*graph.Node
	MaxDepth int

	byID map[uint32]*graph.Node
}

// Get returns the contextual overlay of n, if n was touched.
func (r *Result) Get(n *graph.Node) (*graph.Node, bool) {
	c, ok := r.byID[n.ID()]
	return c, ok
}

// Depth returns the depth of n, or -1 if it was not reached.
func (r *Result) Depth(n *graph.Node) int {
	c, ok := r.Get(n)
	if !ok {
		return -1
	}
	d, _ := c.Get(DepthProp).Float()
	return int(d)
}

type entry struct {
	node  *graph.Node
	depth int
	preds *roaring.Bitmap
	succs *roaring.Bitmap
	// out holds the direct edges that passed the cycle guard.
	out []uint32
}

type pathState struct {
	entries map[uint32]*entry
	order   []uint32
}

func (ps *pathState) touch(n *graph.Node) (*entry, bool) {
	n = n.Original()
	if e, ok := ps.entries[n.ID()]; ok {
		return e, false
	}
	e := &entry{node: n, preds: roaring.New(), succs: roaring.New()}
	ps.entries[n.ID()] = e
	ps.order = append(ps.order, n.ID())
	return e, true
}

// PathAnalysis expands forward from sources along opts.Association. Every
// touched node receives its transitive predecessor and successor sets and
// its depth, the longest distance from any source. Self loops and edges back
// into a predecessor of the current node are ignored, so cyclic graphs
// terminate.
func PathAnalysis(store *graph.Store, sources []*graph.Node, opts PathOptions) *Result {
	assoc := query.Compile(opts.Association)
	ps := &pathState{entries: make(map[uint32]*entry)}

	var queue []*entry
	for _, src := range sources {
		if src == nil {
			continue
		}
		if e, isNew := ps.touch(src); isNew {
			queue = append(queue, e)
		}
	}

	for len(queue) > 0 {
		se := queue[0]
		queue = queue[1:]
		for _, tgt := range assoc.Traverse(store, se.node).Nodes() {
			tgt = tgt.Original()
			if tgt.ID() == se.node.ID() || se.preds.Contains(tgt.ID()) {
				continue
			}
			te, isNew := ps.touch(tgt)
			se.out = append(se.out, te.node.ID())
			ps.link(se, te)
			if se.depth+1 > te.depth {
				te.depth = se.depth + 1
				ps.bump(te)
			}
			if isNew {
				queue = append(queue, te)
			}
		}
	}

	return ps.result(store, opts)
}

// link records the edge se -> te in the transitive sets.
func (ps *pathState) link(se, te *entry) {
	inherited := se.preds.Clone()
	inherited.Add(se.node.ID())
	te.preds.Or(inherited)

	reach := te.succs.Clone()
	reach.Add(te.node.ID())
	it := inherited.Iterator()
	for it.HasNext() {
		ps.entries[it.Next()].succs.Or(reach)
	}
	it = te.succs.Iterator()
	for it.HasNext() {
		ps.entries[it.Next()].preds.Or(inherited)
	}
}

// bump pushes a raised depth forward through the direct edges already
// discovered from start. A node is revisited only when its depth grows.
func (ps *pathState) bump(start *entry) {
	work := []*entry{start}
	for len(work) > 0 {
		e := work[len(work)-1]
		work = work[:len(work)-1]
		for _, id := range e.out {
			next := ps.entries[id]
			if next == e || e.preds.Contains(id) {
				continue
			}
			if e.depth+1 > next.depth {
				next.depth = e.depth + 1
				work = append(work, next)
			}
		}
	}
}

func (ps *pathState) nodes(bm *roaring.Bitmap) []*graph.Node {
	out := make([]*graph.Node, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, ps.entries[it.Next()].node)
	}
	return out
}

func (ps *pathState) result(store *graph.Store, opts PathOptions) *Result {
	res := &Result{byID: make(map[uint32]*graph.Node, len(ps.order))}
	for _, id := range ps.order {
		e := ps.entries[id]
		c := e.node.Contextual()
		preds, succs := ps.nodes(e.preds), ps.nodes(e.succs)
		c.SetScalar(DepthProp, e.depth)
		c.SetNodes(PredecessorsProp, preds)
		c.SetNodes(SuccessorsProp, succs)
		if opts.Upstream != nil {
			writeFields(c, opts.Upstream.Compute(preds), UpstreamCountProp)
		}
		if opts.Downstream != nil {
			writeFields(c, opts.Downstream.Compute(succs), DownstreamCountProp)
		}
		res.MaxDepth = max(res.MaxDepth, e.depth)
		res.Nodes = append(res.Nodes, c)
		res.byID[id] = c
	}

	res.Node = store.NewSynthetic(graph.TypePathAnalysis)
	res.Node.SetScalar(MaxDepthProp, res.MaxDepth)
	res.Node.SetNodes(NodesProp, res.Nodes)
	store.Logger().Debug("path analysis done", "association", opts.Association, "touched", len(res.Nodes), "maxDepth", res.MaxDepth)
	return res
}

// writeFields copies an aggregation onto n, storing the member count under
// countProp so upstream and downstream counts do not collide.
func writeFields(n *graph.Node, agg aggregate.Result, countProp string) {
	for k, v := range agg.Values {
		if k == aggregate.NodeCountField {
			n.SetScalar(countProp, v)
			continue
		}
		n.SetScalar(k, v)
	}
	for k, v := range agg.Texts {
		n.SetScalar(k, v)
	}
}
