package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	candlesusecase "forex_backend/internal/feature/candles/usecase"
)

type qualityOptions struct {
	startDate  string
	endDate    string
	minRecords int
	repair     bool
}

func newQualityCmd(g *globalOptions) *cobra.Command {
	o := &qualityOptions{}
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "Report weekdays with missing bars and optionally re-ingest them",
		Long: `List weekdays whose bar count is below --min-records.
Days under 40 bars are severe, the rest moderate. --repair re-fetches each flagged day with one day of margin.

Examples:
  ingest quality --symbol EUR/USD --timeframe 15min
  ingest quality --symbol EUR/USD --timeframe 15min --start-date 2024-01-01 --repair`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var from, to time.Time
			if o.startDate != "" {
				r := ingestOptions{startDate: o.startDate, endDate: o.endDate}
				var err error
				if from, to, err = r.dateRange(time.Now()); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			minRecords := o.minRecords
			if minRecords <= 0 {
				minRecords = a.cfg.Ingest.MinRecords
			}
			symbols, err := a.resolveSymbols(ctx, g)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			for _, s := range symbols {
				for _, interval := range resolveTimeframes(g, a.cfg.Ingest.Timeframes) {
					rep, err := a.ingest.QualityReport(ctx, s, interval, from, to, minRecords)
					if err != nil {
						return fmt.Errorf("quality %s %s: %w", s, interval, err)
					}
					printQuality(out, rep)
					if !o.repair || len(rep.Days) == 0 {
						continue
					}
					res, err := a.ingest.RepairDays(ctx, s, interval, rep.Days)
					fmt.Fprintf(out, "  repaired %d, failed %d, written %d\n", res.Repaired, res.Failed, res.Written)
					if err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.startDate, "start-date", "", "first day to check (default: first stored bar)")
	f.StringVar(&o.endDate, "end-date", "", "end of the check, exclusive (default now)")
	f.IntVar(&o.minRecords, "min-records", 0, "bars expected per weekday (default ingest.minRecords)")
	f.BoolVar(&o.repair, "repair", false, "re-ingest flagged days")
	return cmd
}

func printQuality(w io.Writer, rep candlesusecase.QualityReport) {
	if rep.From.IsZero() {
		fmt.Fprintf(w, "%s %s: no data stored\n", rep.Symbol, rep.Interval)
		return
	}
	fmt.Fprintf(w, "%s %s [%s, %s): %d day(s) below %d bars, %d severe\n",
		rep.Symbol, rep.Interval, rep.From.Format(time.DateOnly), rep.To.Format(time.DateOnly),
		len(rep.Days), rep.MinRecords, rep.Severe())
	for _, d := range rep.Days {
		fmt.Fprintf(w, "  %s %-3s %4d  %s\n", d.Date.Format(time.DateOnly), d.Date.Weekday().String()[:3], d.Count, d.Severity)
	}
}
