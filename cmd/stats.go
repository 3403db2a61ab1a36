package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/agentic-research/trellis/internal/graph"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var listenAddr string

func init() {
	statsCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve the gauges on this address at /metrics instead of printing them")
	watchCmd.Flags().StringVar(&listenAddr, "listen", "", "Serve gauges of the live store on this address at /metrics")
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print node counts per type, pending forward references and dictionary size",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := buildStore(cmd.Context(), inputs())
		if err != nil {
			return err
		}
		reg := prometheus.NewRegistry()
		if err := reg.Register(graph.NewCollector(store)); err != nil {
			return err
		}
		if listenAddr != "" {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serveMetrics(ctx, listenAddr, reg)
		}
		return writeGauges(cmd.OutOrStdout(), reg)
	},
}

// writeGauges prints every gathered gauge as "name{labels} value".
func writeGauges(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	out := make(map[string]any)
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				parts := make([]string, len(labels))
				for i, l := range labels {
					parts[i] = fmt.Sprintf("%s=%q", l.GetName(), l.GetValue())
				}
				name += "{" + strings.Join(parts, ",") + "}"
			}
			v := m.GetGauge().GetValue()
			out[name] = v
			lines = append(lines, fmt.Sprintf("%s %s", name, graph.FormatScalar(v)))
		}
	}
	if format == formatJSON {
		return writeJSON(w, out)
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics serves g at /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("serving metrics", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
