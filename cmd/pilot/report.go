package main

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gws-pilot/internal/analytics"
	"gws-pilot/internal/pilot"
)

func newReportCmd(cc *cliContext) *cobra.Command {
	var (
		date   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the usage report for one UTC day from the exchange log",
		RunE: func(cmd *cobra.Command, args []string) error {
			day := time.Now().UTC()
			if date != "" {
				d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
				if err != nil {
					return errors.Wrapf(err, "invalid --date %q", date)
				}
				day = d
			}

			rec, err := pilot.OpenRecorder(cc.cfg)
			if err != nil {
				return err
			}
			if c, ok := rec.(io.Closer); ok {
				defer c.Close()
			}
			events, err := rec.LoadInteractions()
			if err != nil {
				return errors.Wrap(err, "failed to load exchanges")
			}
			return writeReport(cmd.OutOrStdout(), analytics.AnalyzeDailyLogs(events, day), asJSON)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report, YYYY-MM-DD (default today, UTC)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func writeReport(w io.Writer, stats *analytics.DailyStats, asJSON bool) error {
	if !asJSON {
		_, err := fmt.Fprint(w, stats.GenerateReportSummary())
		return err
	}
	out, err := stats.ToJSON()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
