package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	candlesusecase "forex_backend/internal/feature/candles/usecase"
	"forex_backend/internal/shared/ratelimiter"
)

// ingestOptions は取り込みモードを選ぶフラグです。どれか1つだけ指定します。
type ingestOptions struct {
	startDate string
	endDate   string
	year      int
	fromYear  int
	lastDays  int
	chunkDays float64
	size      int
}

type ingestMode int

const (
	modeRange ingestMode = iota + 1
	modeYear
	modeFromYear
	modeLastDays
	modeLatest
)

func (o *ingestOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.startDate, "start-date", "", "range start (YYYY-MM-DD, inclusive)")
	f.StringVar(&o.endDate, "end-date", "", "range end (YYYY-MM-DD, exclusive; default now)")
	f.IntVar(&o.year, "year", 0, "ingest one full calendar year")
	f.IntVar(&o.fromYear, "from-year", 0, "ingest from Jan 1 of this year until now")
	f.IntVar(&o.lastDays, "last-days", 0, "ingest the last N days")
	f.Float64Var(&o.chunkDays, "chunk-days", candlesusecase.DefaultChunkDays, "chunk size in days for --last-days")
	f.IntVar(&o.size, "size", 0, "fetch only the latest N bars per series")
}

// mode は指定されたフラグから取り込みモードを1つ決めます。
func (o *ingestOptions) mode() (ingestMode, error) {
	var modes []ingestMode
	var names []string
	if o.startDate != "" || o.endDate != "" {
		modes, names = append(modes, modeRange), append(names, "--start-date/--end-date")
	}
	if o.year > 0 {
		modes, names = append(modes, modeYear), append(names, "--year")
	}
	if o.fromYear > 0 {
		modes, names = append(modes, modeFromYear), append(names, "--from-year")
	}
	if o.lastDays > 0 {
		modes, names = append(modes, modeLastDays), append(names, "--last-days")
	}
	if o.size > 0 {
		modes, names = append(modes, modeLatest), append(names, "--size")
	}
	switch len(modes) {
	case 0:
		return 0, errors.New("choose one of --start-date, --year, --from-year, --last-days, --size")
	case 1:
		if modes[0] == modeRange && o.startDate == "" {
			return 0, errors.New("--end-date requires --start-date")
		}
		return modes[0], nil
	default:
		return 0, fmt.Errorf("flags are mutually exclusive: %s", strings.Join(names, ", "))
	}
}

// dateRange は --start-date/--end-date を解釈します。終了日が空なら now までです。
func (o *ingestOptions) dateRange(now time.Time) (time.Time, time.Time, error) {
	start, err := parseDate(o.startDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start-date: %w", err)
	}
	end := now.UTC()
	if o.endDate != "" {
		if end, err = parseDate(o.endDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("--end-date: %w", err)
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--start-date must be before --end-date")
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func runIngest(cmd *cobra.Command, g *globalOptions, o *ingestOptions) error {
	mode, err := o.mode()
	if err != nil {
		return err
	}
	var start, end time.Time
	if mode == modeRange {
		if start, end, err = o.dateRange(time.Now()); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	a, err := loadApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	symbols, err := a.resolveSymbols(ctx, g)
	if err != nil {
		return err
	}
	intervals := resolveTimeframes(g, a.cfg.Ingest.Timeframes)
	out := cmd.OutOrStdout()
	progress := func(p candlesusecase.Progress) {
		fmt.Fprintf(out, "  %s %s: %d/%d chunks, %d candles\n", p.Symbol, p.Interval, p.ChunksDone, p.ChunksTotal, p.CandlesWritten)
	}

	a.logger.Info("ingest started",
		zap.Strings("symbols", symbols),
		zap.Strings("timeframes", intervals),
	)

	var sums []candlesusecase.IngestSummary
	switch mode {
	case modeLatest:
		sums, err = a.ingest.IngestLatest(ctx, symbols, intervals, o.size)
	case modeRange:
		sums, err = a.ingest.IngestTimeframes(ctx, symbols, intervals, start, end, progress)
	default:
		sums, err = eachSeries(ctx, symbols, intervals, func(symbol, interval string) (candlesusecase.IngestSummary, error) {
			switch mode {
			case modeYear:
				return a.ingest.IngestYear(ctx, symbol, interval, o.year, progress)
			case modeFromYear:
				return a.ingest.IngestFromYear(ctx, symbol, interval, o.fromYear, progress)
			default:
				return a.ingest.IngestLastDays(ctx, symbol, interval, o.lastDays, o.chunkDays, progress)
			}
		})
	}

	failed := printSummaries(out, sums)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d chunk(s) failed; re-run the same range to retry", failed)
	}
	return nil
}

// eachSeries は銘柄 × 時間足ごとに fn を呼びます。呼び出し枠の枯渇やキャンセルで打ち切ります。
func eachSeries(ctx context.Context, symbols, intervals []string, fn func(symbol, interval string) (candlesusecase.IngestSummary, error)) ([]candlesusecase.IngestSummary, error) {
	var out []candlesusecase.IngestSummary
	var errs []error
	for _, s := range symbols {
		for _, interval := range intervals {
			sum, err := fn(s, interval)
			out = append(out, sum)
			if err == nil {
				continue
			}
			if ctx.Err() != nil || isFatal(err) {
				return out, err
			}
			errs = append(errs, fmt.Errorf("%s %s: %w", s, interval, err))
		}
	}
	return out, errors.Join(errs...)
}

// printSummaries は結果を表示し、失敗したチャンク数を返します。
func printSummaries(w io.Writer, sums []candlesusecase.IngestSummary) int {
	failed := 0
	for _, s := range sums {
		status := "ok"
		if !s.OK() {
			status = fmt.Sprintf("%d failed", len(s.Failures))
		}
		fmt.Fprintf(w, "%-10s %-6s chunks %d/%d  written %d  rejected %d  %s\n",
			s.Symbol, s.Interval, s.ChunksDone, s.ChunksTotal, s.CandlesWritten, s.Rejected, status)
		for _, f := range s.Failures {
			if f.Chunk.End.IsZero() {
				fmt.Fprintf(w, "    failed: %v\n", f.Err)
				continue
			}
			fmt.Fprintf(w, "    failed [%s, %s): %v\n", f.Chunk.Start.Format(time.DateTime), f.Chunk.End.Format(time.DateTime), f.Err)
		}
		failed += len(s.Failures)
	}
	return failed
}

// isFatal は残りのシリーズを処理しても無駄なエラーかどうかを返します。
func isFatal(err error) bool {
	return errors.Is(err, ratelimiter.ErrQuotaExceeded)
}
