package analysis

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/query"
)

// DeriveAssociations resolves path from every source and, for each node
// whose result (minus the node itself) is non-empty, emits a contextual
// overlay carrying that result under derivedName. With recursive set, newly
// reached nodes form the next frontier until nothing new is found; each node
// is expanded at most once per run.
func DeriveAssociations(store *graph.Store, sources []*graph.Node, path, derivedName string, recursive bool) []*graph.Node {
	p := query.Compile(path)
	seen := roaring.New()
	var frontier []*graph.Node
	for _, n := range sources {
		if n != nil && seen.CheckedAdd(n.ID()) {
			frontier = append(frontier, n)
		}
	}

	var out []*graph.Node
	for len(frontier) > 0 {
		var next []*graph.Node
		for _, n := range frontier {
			targets := p.Traverse(store, n).Without(n).Nodes()
			if len(targets) == 0 {
				continue
			}
			c := n.Contextual()
			c.SetNodes(derivedName, targets)
			out = append(out, c)
			if !recursive {
				continue
			}
			for _, t := range targets {
				if seen.CheckedAdd(t.ID()) {
					next = append(next, t)
				}
			}
		}
		frontier = next
	}
	return out
}
