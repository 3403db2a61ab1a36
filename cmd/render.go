package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/agentic-research/trellis/internal/aggregate"
	"github.com/agentic-research/trellis/internal/analysis"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/recipe"
	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/oj"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// groupProps are the bookkeeping properties of group nodes, hidden when a
// group's aggregated fields are printed.
var groupProps = map[string]bool{
	aggregate.GroupKeyProp:       true,
	aggregate.GroupValueProp:     true,
	aggregate.GroupDimensionProp: true,
	aggregate.MembersProp:        true,
	aggregate.SubGroupsProp:      true,
	graph.PropName:               true,
}

// fields returns n's scalar properties, skipping hidden ones.
func fields(n *graph.Node, hidden map[string]bool) map[string]any {
	out := make(map[string]any)
	for _, p := range n.Properties() {
		if hidden[p] {
			continue
		}
		if v := n.Get(p); v.Kind() == graph.Scalar {
			out[p] = v.Scalar()
		}
	}
	return out
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func writeFields(w io.Writer, indent string, f map[string]any) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s%s: %s\n", indent, k, graph.FormatScalar(f[k]))
	}
}

func writeJSON(w io.Writer, v any) error {
	_, err := fmt.Fprintln(w, oj.JSON(v, &ojg.Options{Indent: 2, Sort: true}))
	return err
}

func tableJSON(header []string, rows [][]string) []any {
	out := make([]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(header))
		for j, h := range header {
			if j < len(row) {
				m[h] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

func groupsJSON(gs *aggregate.GroupedSet) []any {
	var out []any
	for _, g := range gs.Groups() {
		m := map[string]any{
			"key":     g.Key,
			"name":    g.Name,
			"count":   len(g.Members),
			"fields":  fields(g.Node, groupProps),
			"members": nodeKeys(g.Members),
		}
		if g.Sub != nil {
			m["dimension"] = g.Sub.Dimension
			m["groups"] = groupsJSON(g.Sub)
		}
		out = append(out, m)
	}
	return out
}

func writeGroups(w io.Writer, gs *aggregate.GroupedSet, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, g := range gs.Groups() {
		label := g.Name
		if label == "" {
			label = g.Key
		}
		fmt.Fprintf(w, "%s%s=%s (%d)\n", indent, gs.Dimension, label, len(g.Members))
		writeFields(w, indent+"  ", fields(g.Node, groupProps))
		if g.Sub != nil {
			writeGroups(w, g.Sub, depth+1)
		}
	}
}

func nodeKeys(nodes []*graph.Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key()
	}
	return out
}

// stepAttributes defaults path analysis output to the computed depth.
func stepAttributes(res *recipe.Result) []string {
	if len(res.Step.Attributes) > 0 || res.Analysis == nil {
		return res.Step.Attributes
	}
	return []string{graph.PropKey, graph.PropName, analysis.DepthProp}
}

func writeResults(w io.Writer, store *graph.Store, results []*recipe.Result) error {
	if format == formatJSON {
		out := make([]any, 0, len(results))
		for _, res := range results {
			header, rows := recipe.Table(store, res.Nodes, stepAttributes(res))
			m := map[string]any{
				"step":  res.Step.Name,
				"count": len(res.Nodes),
				"nodes": tableJSON(header, rows),
			}
			if res.Aggregate != nil {
				m["aggregate"] = fields(res.Aggregate, groupProps)
			}
			if res.Groups != nil {
				m["dimension"] = res.Groups.Dimension
				m["groups"] = groupsJSON(res.Groups)
			}
			if res.Analysis != nil {
				m["maxDepth"] = res.Analysis.MaxDepth
			}
			out = append(out, m)
		}
		return writeJSON(w, out)
	}

	for _, res := range results {
		fmt.Fprintf(w, "== %s (%d nodes)\n", res.Step.Name, len(res.Nodes))
		if res.Analysis != nil {
			fmt.Fprintf(w, "maxDepth: %d\n", res.Analysis.MaxDepth)
		}
		if res.Groups != nil {
			writeGroups(w, res.Groups, 0)
		} else if res.Aggregate != nil {
			writeFields(w, "", fields(res.Aggregate, groupProps))
		} else {
			header, rows := recipe.Table(store, res.Nodes, stepAttributes(res))
			if err := writeTable(w, header, rows); err != nil {
				return err
			}
		}
		fmt.Fprintln(w)
	}
	return nil
}
