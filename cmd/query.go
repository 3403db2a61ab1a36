package cmd

import (
	"fmt"
	"strings"

	"github.com/agentic-research/trellis/api"
	"github.com/agentic-research/trellis/internal/filter"
	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/query"
	"github.com/agentic-research/trellis/internal/recipe"
	"github.com/spf13/cobra"
)

var (
	whereConds []string
	attrPaths  []string
)

func init() {
	queryCmd.Flags().StringArrayVarP(&whereConds, "where", "w", nil, `Filter as "attribute op operand", e.g. "revenue >= 20" (repeatable)`)
	queryCmd.Flags().StringSliceVarP(&attrPaths, "attr", "a", nil, "Attribute paths to print per node")
	rootCmd.AddCommand(queryCmd)
}

// parseWhere splits "attribute condition" at the first space.
func parseWhere(conds []string) ([]api.FilterDescriptor, error) {
	out := make([]api.FilterDescriptor, 0, len(conds))
	for _, c := range conds {
		attr, cond, ok := strings.Cut(strings.TrimSpace(c), " ")
		if !ok {
			return nil, fmt.Errorf("%w: %q", filter.ErrUnparseable, c)
		}
		out = append(out, api.FilterDescriptor{attr: strings.TrimSpace(cond)})
	}
	return out, nil
}

var queryCmd = &cobra.Command{
	Use:   "query [path]",
	Short: "Traverse a path such as ~Company/employs and print the resulting nodes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		descs, err := parseWhere(whereConds)
		if err != nil {
			return err
		}
		store, err := buildStore(cmd.Context(), inputs())
		if err != nil {
			return err
		}

		var header []string
		var rows [][]string
		var scalars []any
		err = store.View(func() error {
			set := query.Traverse(store, nil, args[0])
			nodes := set.Nodes()
			if len(descs) > 0 {
				chain, err := filter.ParseAll(store, descs)
				if err != nil {
					return err
				}
				if nodes, err = chain.Process(nodes); err != nil {
					return err
				}
			}
			header, rows = recipe.Table(store, nodes, attrPaths)
			scalars = set.Scalars()
			return nil
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if format == formatJSON {
			return writeJSON(w, map[string]any{
				"path":    args[0],
				"nodes":   tableJSON(header, rows),
				"scalars": scalars,
			})
		}
		if err := writeTable(w, header, rows); err != nil {
			return err
		}
		for _, x := range scalars {
			fmt.Fprintln(w, graph.FormatScalar(x))
		}
		return nil
	},
}
