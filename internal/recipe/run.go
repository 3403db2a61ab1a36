package recipe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentic-research/trellis/api"
	"github.com/agentic-research/trellis/internal/aggregate"
	"github.com/agentic-research/trellis/internal/analysis"
	"github.com/agentic-research/trellis/internal/filter"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/nodeset"
	"github.com/agentic-research/trellis/internal/query"
)

// Result is the outcome of one step.
type Result struct {
	Step  *Step
	Nodes []*graph.Node

	// Aggregate is set when the step aggregates without grouping.
	Aggregate *graph.Node
	// Groups is set when the step groups.
	Groups *aggregate.GroupedSet
	// Analysis is set when the step runs path analysis.
	Analysis *analysis.Result
}

// Run executes the steps in order under the store's writer lock. Steps
// refer to earlier results by name.
func (r *Recipe) Run(ctx context.Context, store *graph.Store) ([]*Result, error) {
	var results []*Result
	err := store.Update(func() error {
		byName := make(map[string]*Result, len(r.Steps))
		for i := range r.Steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			step := &r.Steps[i]
			res, err := runStep(store, step, byName)
			if err != nil {
				return fmt.Errorf("step %q: %w", step.Name, err)
			}
			byName[step.Name] = res
			results = append(results, res)
			store.Logger().Info("recipe step done", slog.String("recipe", r.Name), slog.String("step", step.Name), slog.Int("nodes", len(res.Nodes)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func runStep(store *graph.Store, s *Step, prev map[string]*Result) (*Result, error) {
	nodes, err := source(store, s, prev)
	if err != nil {
		return nil, err
	}
	if len(s.Filters) > 0 {
		chain, err := filter.ParseAll(store, s.Filters)
		if err != nil {
			return nil, err
		}
		if nodes, err = chain.Process(nodes); err != nil {
			return nil, err
		}
	}

	res := &Result{Step: s}
	if s.Derive != nil {
		nodes = analysis.DeriveAssociations(store, nodes, s.Derive.Path, s.Derive.As, s.Derive.Recursive)
	}
	if s.PathAnalysis != nil {
		opts := analysis.PathOptions{Association: s.PathAnalysis.Association}
		if opts.Upstream, err = newAggregator(store, s.PathAnalysis.Upstream); err != nil {
			return nil, fmt.Errorf("upstream: %w", err)
		}
		if opts.Downstream, err = newAggregator(store, s.PathAnalysis.Downstream); err != nil {
			return nil, fmt.Errorf("downstream: %w", err)
		}
		res.Analysis = analysis.PathAnalysis(store, nodes, opts)
		nodes = res.Analysis.Nodes
	}

	agg, err := newAggregator(store, s.Aggregate)
	if err != nil {
		return nil, err
	}
	switch {
	case len(s.GroupBy) > 0:
		res.Groups = aggregate.Dice(store, nodes, s.GroupBy)
		if agg != nil {
			res.Groups.Aggregate(agg)
		}
	case agg != nil:
		res.Aggregate = agg.Aggregate(nodes)
	}
	res.Nodes = nodes
	return res, nil
}

func source(store *graph.Store, s *Step, prev map[string]*Result) ([]*graph.Node, error) {
	lists := func(names []string) []any {
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = prev[n].Nodes
		}
		return out
	}
	switch {
	case len(s.Union) > 0:
		return nodeset.Unify(lists(s.Union)...)
	case len(s.Intersect) > 0:
		return nodeset.Intersect(lists(s.Intersect)...)
	case len(s.Subtract) > 0:
		return nodeset.Subtract(lists(s.Subtract)...)
	}

	var from []*graph.Node
	if s.From != "" {
		from = prev[s.From].Nodes
	}
	if s.Query == "" {
		return from, nil
	}
	return query.Traverse(store, from, s.Query).Nodes(), nil
}

func newAggregator(store *graph.Store, spec *api.AggregatorSpec) (*aggregate.Aggregator, error) {
	if spec == nil {
		return nil, nil
	}
	return aggregate.New(store, *spec)
}

// Table projects nodes onto attribute paths for display. Without attributes
// each node is shown by its unique key and display name.
func Table(store *graph.Store, nodes []*graph.Node, attributes []string) ([]string, [][]string) {
	if len(attributes) == 0 {
		rows := make([][]string, len(nodes))
		for i, n := range nodes {
			rows[i] = []string{n.Key(), n.DisplayName()}
		}
		return []string{graph.PropKey, graph.PropName}, rows
	}
	paths := make([]query.Path, len(attributes))
	for i, a := range attributes {
		paths[i] = query.Compile(a)
	}
	rows := make([][]string, len(nodes))
	for i, n := range nodes {
		row := make([]string, len(paths))
		for j, p := range paths {
			row[j] = p.ResolveAttribute(store, n).String()
		}
		rows[i] = row
	}
	return append([]string(nil), attributes...), rows
}
