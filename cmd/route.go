package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/afd-analytics/stationdist/internal/config"
	"github.com/afd-analytics/stationdist/internal/incident"
	"github.com/afd-analytics/stationdist/internal/routing"
	"github.com/afd-analytics/stationdist/internal/store"
)

// routeOptions are the per-invocation inputs of the route command.
type routeOptions struct {
	Input  string
	Output string
	Format string
	Bypass bool
}

var routeOpts routeOptions

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Add closest-station road distances to an incident table",
	Long: "Reads a CSV or XLSX incident table, computes the road distance from every " +
		"eligible station to each incident, and writes the table with the distance, " +
		"closest-station and walk-up columns appended.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("route"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := runRoute(ctx, cfg, routeOpts)
		if err != nil {
			return err
		}

		zap.L().Info("route complete",
			zap.Int("rows", summary.Rows),
			zap.Int("assigned", summary.Assigned),
			zap.Int("walkups", summary.Walkups),
			zap.Int("unassigned", summary.Unassigned),
			zap.Int("unmatched", summary.Unmatched),
		)
		return nil
	},
}

func init() {
	routeCmd.Flags().StringVarP(&routeOpts.Input, "input", "i", "", "incident table (.csv or .xlsx)")
	routeCmd.Flags().StringVarP(&routeOpts.Output, "output", "o", "", "output path (default: <input>_stations.<ext>)")
	routeCmd.Flags().StringVar(&routeOpts.Format, "format", "", "output format: csv, xlsx or geojson (default: from output extension)")
	routeCmd.Flags().BoolVar(&routeOpts.Bypass, "bypass", false, "skip routing and write empty station columns")
	_ = routeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(routeCmd)
}

// defaultOutput derives the output path from the input path.
func defaultOutput(input string, format incident.Format) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	switch format {
	case incident.FormatGeoJSON:
		ext = ".geojson"
	case incident.FormatXLSX:
		ext = ".xlsx"
	default:
		ext = ".csv"
	}
	return base + "_stations" + ext
}

func inputColumns(c *config.Config) incident.Columns {
	return incident.Columns{
		Lon:        c.Input.LonColumn,
		Lat:        c.Input.LatColumn,
		Bucket:     c.Input.BucketColumn,
		Time:       c.Input.TimeColumn,
		TimeLayout: c.Input.TimeLayout,
	}
}

// openStore opens the run ledger, or returns nil when it is disabled.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if c.Store.Driver == "" || c.Store.Driver == "none" {
		return nil, nil
	}
	return store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
}

// runRoute executes one batch routing run end to end.
func runRoute(ctx context.Context, c *config.Config, opts routeOptions) (*routing.Summary, error) {
	log := zap.L().With(zap.String("component", "route"), zap.String("input", opts.Input))

	var format incident.Format
	if opts.Format != "" {
		f, err := incident.ParseFormat(opts.Format)
		if err != nil {
			return nil, err
		}
		format = f
	} else if opts.Output != "" {
		format = incident.FormatFromPath(opts.Output)
	} else {
		format = incident.FormatFromPath(opts.Input)
	}
	output := opts.Output
	if output == "" {
		output = defaultOutput(opts.Input, format)
	}

	runs, err := openStore(ctx, c)
	if err != nil {
		return nil, err
	}
	var runID string
	if runs != nil {
		defer runs.Close() //nolint:errcheck
		run, err := runs.CreateRun(ctx, store.NewRun{Input: opts.Input, Output: output, Bypassed: opts.Bypass})
		if err != nil {
			return nil, err
		}
		runID = run.ID
		log = log.With(zap.String("run_id", runID))
	}

	summary, err := route(ctx, c, opts, format, output, log)
	if runs != nil {
		// Record the outcome even when ctx was cancelled.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err != nil {
			if ferr := runs.FailRun(recCtx, runID, err); ferr != nil {
				log.Warn("failed to record run failure", zap.Error(ferr))
			}
		} else if cerr := runs.CompleteRun(recCtx, runID, *summary); cerr != nil {
			log.Warn("failed to record run completion", zap.Error(cerr))
		}
	}
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func route(ctx context.Context, c *config.Config, opts routeOptions, format incident.Format, output string, log *zap.Logger) (*routing.Summary, error) {
	table, err := incident.ReadFile(ctx, opts.Input, incident.ReadOptions{
		CSV:  incident.CSVOptions{Encoding: c.Input.Encoding, TrimSpace: true},
		XLSX: incident.XLSXOptions{SheetName: c.Input.Sheet},
	})
	if err != nil {
		return nil, err
	}
	log.Info("read incident table", zap.Int("rows", table.Len()))

	cols := inputColumns(c)

	var rep *routing.Report
	if opts.Bypass {
		reg, err := loadStations(ctx, c)
		if err != nil {
			return nil, err
		}
		log.Warn("routing bypassed, station columns will be empty")
		rep = routing.BypassReport(reg, table.Len())
	} else {
		reqs, err := table.Requests(cols)
		if err != nil {
			return nil, err
		}
		env, err := initRouting(ctx, c)
		if err != nil {
			return nil, err
		}
		rep, err = env.Engine.Run(ctx, reqs)
		if err != nil {
			return nil, eris.Wrap(err, "route: compute distances")
		}
	}

	out, err := incident.Augment(table, rep)
	if err != nil {
		return nil, err
	}
	if err := incident.WriteFile(output, format, out, cols); err != nil {
		return nil, err
	}

	log.Info("wrote output", zap.String("output", output), zap.String("format", string(format)))
	return &rep.Summary, nil
}
