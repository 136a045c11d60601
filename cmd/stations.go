package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/afd-analytics/stationdist/internal/station"
)

var stationsCmd = &cobra.Command{
	Use:   "stations",
	Short: "Inspect the station registry",
}

var stationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured stations in declaration order",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("stations"); err != nil {
			return err
		}
		reg, err := loadStations(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		formatStations(os.Stdout, reg.All())
		return nil
	},
}

func formatStations(out io.Writer, stations []station.Station) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLON\tLAT\tEMS\tFIRE\tACTIVE")
	for _, s := range stations {
		_, _ = fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%s\t%s\t%s\n",
			s.ID, s.Lon, s.Lat, yesNo(s.HasEMS), yesNo(s.HasFire),
			activeFrom(s))
	}
	_ = w.Flush()
}

func activeFrom(s station.Station) string {
	if s.ActiveFrom.IsZero() {
		return "-"
	}
	return s.ActiveFrom.Format(station.DateLayout)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func init() {
	stationsCmd.AddCommand(stationsListCmd)
	rootCmd.AddCommand(stationsCmd)
}
