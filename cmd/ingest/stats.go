package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"forex_backend/internal/feature/candles/domain/entity"
)

func newStatsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored row counts and time ranges",
		Long: `Show what the store holds. Without --symbol every stored series is listed.

Examples:
  ingest stats
  ingest stats --symbol EUR/USD --timeframes 1h,4h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g)
			if err != nil {
				return err
			}
			defer a.close()

			var rows []entity.SeriesStats
			if len(g.symbols) == 0 && !g.active {
				if rows, err = a.store.Summary(ctx); err != nil {
					return fmt.Errorf("summary: %w", err)
				}
			} else {
				symbols, err := a.resolveSymbols(ctx, g)
				if err != nil {
					return err
				}
				for _, s := range symbols {
					for _, interval := range resolveTimeframes(g, a.cfg.Ingest.Timeframes) {
						if _, err := entity.ParseTimeframe(interval); err != nil {
							return err
						}
						st, err := a.store.Stats(ctx, s, interval)
						if err != nil {
							return fmt.Errorf("stats %s %s: %w", s, interval, err)
						}
						rows = append(rows, st)
					}
				}
			}
			printStats(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}

func printStats(w io.Writer, rows []entity.SeriesStats) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no data stored")
		return
	}
	fmt.Fprintf(w, "%-10s %-6s %10s  %-19s  %-19s\n", "SYMBOL", "TF", "ROWS", "FIRST", "LAST")
	for _, r := range rows {
		first, last := "-", "-"
		if r.Count > 0 {
			first, last = r.MinTime.UTC().Format(time.DateTime), r.MaxTime.UTC().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%-10s %-6s %10d  %-19s  %-19s\n", r.Symbol, r.Interval, r.Count, first, last)
	}
}
