package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"trendsys/config"
	"trendsys/internal/analyzer"
	"trendsys/internal/model"
	sqlitestore "trendsys/internal/store/sqlite"

	"github.com/spf13/cobra"
)

// historyCmd replays one series from the SQLite candle archive through a fresh
// engine and prints every report it would have produced.
func (a *app) historyCmd() *cobra.Command {
	var (
		cf                        configFlags
		dbPath, exchange, token   string
		tf, window, minPts, every int
		period, neighbor          int
		fromTS                    int64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Replay archived candles of one series through the trend engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cf.resolve(cmd)
			if err != nil {
				return err
			}
			eng, err := analyzer.NewEngine(analyzer.EngineConfig{
				TFs:          []int{tf},
				WindowSize:   window,
				MinPoints:    minPts,
				AnalyzeEvery: every,
				Options:      analyzer.Options{Config: cfg, ExtremaPeriod: period, ExtremaNeighbor: neighbor},
			})
			if err != nil {
				return err
			}

			store, err := sqlitestore.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			candles, err := store.ReadTFCandles(exchange, token, tf, fromTS)
			if err != nil {
				return err
			}

			reports := []*model.TrendReport{}
			analyzer.NewRestorer(eng.Config()).Replay(eng, candles, func(r *model.TrendReport) {
				reports = append(reports, r)
			})
			return writeReports(a.out, a.format, reports)
		},
	}
	cf.register(cmd)
	f := cmd.Flags()
	f.StringVar(&dbPath, "db", config.GetEnv("SQLITE_PATH", "data/trend.db"), "SQLite archive path")
	f.StringVar(&exchange, "exchange", "NSE", "Exchange of the series")
	f.StringVar(&token, "token", "", "Instrument token of the series")
	f.IntVar(&tf, "tf", 60, "Timeframe in seconds")
	f.Int64Var(&fromTS, "from", 0, "Only candles after this Unix time")
	f.IntVar(&window, "window", 200, "Bars kept in the rolling window")
	f.IntVar(&minPts, "min-points", 30, "Bars required before the first report")
	f.IntVar(&every, "every", 1, "Closed candles between reports")
	f.IntVar(&period, "period", 5, "Extremum window half-width")
	f.IntVar(&neighbor, "closest-neighbor", 5, "Extremum merge distance")
	cmd.MarkFlagRequired("token")
	return cmd
}

func writeReports(w io.Writer, format string, reports []*model.TrendReport) error {
	if format == formatJSON {
		return writeJSON(w, reports)
	}
	rows := make([]string, len(reports))
	for i, r := range reports {
		dir, slope, start := "-", "-", "-"
		if cur, ok := r.CurrentSegment(); ok {
			dir, slope, start = string(cur.Direction()), num(cur.Slope), strconv.Itoa(cur.Start)
		}
		rows[i] = fmt.Sprintf("%s\t%d\t%d\t%s\t%s\t%s",
			r.TS.UTC().Format(time.RFC3339), r.Points, len(r.Segments), start, dir, slope)
	}
	return table(w, "TS\tPOINTS\tSEGMENTS\tCUR_START\tCUR_DIR\tCUR_SLOPE", rows)
}
