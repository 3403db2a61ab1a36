package cmd

import (
	"context"
	"io"

	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/recipe"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [recipe.yaml]",
	Short: "Run a recipe against its inputs and print every step",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runRecipe(cmd.Context(), cmd.OutOrStdout(), args[0])
		return err
	},
}

// runRecipe loads the recipe, builds a fresh store from the global inputs
// plus the recipe's own, runs it and prints the results.
func runRecipe(ctx context.Context, w io.Writer, path string) (*graph.Store, error) {
	r, err := recipe.Load(path)
	if err != nil {
		return nil, err
	}
	store, err := buildStore(ctx, inputs(r.Inputs...))
	if err != nil {
		return nil, err
	}
	results, err := r.Run(ctx, store)
	if err != nil {
		return nil, err
	}
	return store, writeResults(w, store, results)
}
