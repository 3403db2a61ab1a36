package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/ingest"
	"github.com/agentic-research/trellis/internal/schema"
	"github.com/spf13/cobra"
)

var (
	typePaths []string
	dataPaths []string
	verbose   bool
	format    string
)

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&typePaths, "types", "t", nil, "Type dictionary files (JSON or HCL)")
	rootCmd.PersistentFlags().StringSliceVarP(&dataPaths, "data", "d", nil, "Data files (JSON, CSV, SQLite)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", formatText, "Output format: text or json")
}

var rootCmd = &cobra.Command{
	Use:           "trellis",
	Short:         "Trellis: typed property-graph queries, aggregation and path analysis",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		if format != formatText && format != formatJSON {
			return fmt.Errorf("unknown format %q", format)
		}
		return nil
	},
}

// inputs returns the type files followed by the data files and extra, so
// the dictionary is always imported before the data that uses it.
func inputs(extra ...string) []string {
	out := make([]string, 0, len(typePaths)+len(dataPaths)+len(extra))
	out = append(out, typePaths...)
	out = append(out, dataPaths...)
	return append(out, extra...)
}

// buildStore creates a fresh store and imports paths into it.
func buildStore(ctx context.Context, paths []string) (*graph.Store, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files: use --types and --data")
	}
	store := graph.NewStore(schema.NewDictionary(), graph.WithLogger(slog.Default()))
	if err := ingest.NewImporter(store).ImportFiles(ctx, paths...); err != nil {
		return nil, err
	}
	slog.Debug("store loaded", "files", len(paths), "nodes", store.Len(), "pending", len(store.Pending()))
	return store, nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
