package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/projection"
	"github.com/afd-analytics/stationdist/internal/roadnet"
)

var roadsCmd = &cobra.Command{
	Use:   "roads",
	Short: "Manage the cached road network",
}

var roadsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download, simplify and cache the road network",
	Long:  "Builds the projected road graph for roads.place, downloading it when no cache exists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("roads"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		provider, err := newProvider(cfg, projection.TexasCentral())
		if err != nil {
			return err
		}

		start := time.Now()
		g, err := provider.Load(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("road network ready",
			zap.Int("nodes", g.NumNodes()),
			zap.Int("edges", g.NumEdges()),
			zap.Duration("elapsed", time.Since(start)),
		)
		return nil
	},
}

var roadsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which road network cache files exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := roadnet.NewProvider(roadnet.NewCache(cfg.Roads.CacheDir), nil, projection.TexasCentral(),
			roadnet.ProviderOptions{Place: cfg.Roads.Place, BufferMeters: cfg.Roads.BufferMeters})

		tiers, err := provider.Status(cmd.Context())
		if err != nil {
			return err
		}
		formatTiers(os.Stdout, tiers)
		return nil
	},
}

// formatTiers writes one line per cache file to out.
func formatTiers(out io.Writer, tiers []roadnet.TierStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tSTAGE\tSOURCE\tPLACE\tBUFFER (m)\tBUILT")
	for _, t := range tiers {
		if !t.Exists {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\tmissing\n", t.Path)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%s\n",
			t.Path, t.Meta.Stage, t.Meta.Source, t.Meta.Place, t.Meta.BufferMeters,
			t.Meta.BuiltAt.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func init() {
	roadsCmd.AddCommand(roadsFetchCmd)
	roadsCmd.AddCommand(roadsStatusCmd)
	rootCmd.AddCommand(roadsCmd)
}
