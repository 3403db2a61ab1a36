package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentic-research/trellis/internal/graph"
	"github.com/agentic-research/trellis/internal/recipe"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var debounce time.Duration

func init() {
	watchCmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "Quiet period before re-running after a change")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [recipe.yaml]",
	Short: "Run a recipe and re-run it whenever the recipe or its inputs change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r, err := recipe.Load(args[0])
		if err != nil {
			return err
		}
		files := append(inputs(r.Inputs...), args[0])

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer func() { _ = watcher.Close() }()
		// Watch directories so editors that replace files on save are seen.
		watched := make(map[string]bool)
		tracked := make(map[string]bool)
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return err
			}
			tracked[abs] = true
			dir := filepath.Dir(abs)
			if watched[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			watched[dir] = true
		}

		w := cmd.OutOrStdout()
		live := graph.NewHotSwapStore(nil)
		if listenAddr != "" {
			reg := prometheus.NewRegistry()
			if err := reg.Register(graph.NewHotSwapCollector(live)); err != nil {
				return err
			}
			go func() {
				if err := serveMetrics(ctx, listenAddr, reg); err != nil {
					slog.Error("metrics server failed", "err", err)
				}
			}()
		}
		rerun := func() {
			store, err := runRecipe(ctx, w, args[0])
			if err != nil {
				slog.Error("recipe run failed", "recipe", args[0], "err", err)
				return
			}
			live.Swap(store)
		}
		rerun()

		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				abs, _ := filepath.Abs(ev.Name)
				if !tracked[abs] || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				slog.Debug("input changed", "file", ev.Name, "op", ev.Op.String())
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				slog.Warn("watch error", "err", err)
			case <-fire:
				rerun()
				if s := live.Current(); s != nil {
					slog.Info("store reloaded", "nodes", s.Len())
				}
			}
		}
	},
}
