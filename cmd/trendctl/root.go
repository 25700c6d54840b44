package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"trendsys/config"
	"trendsys/internal/trend"
	"trendsys/internal/trendengine"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

type app struct {
	in  io.Reader
	out io.Writer

	// newRedis opens the client used by "reload".
	newRedis func(addr, password string) *goredis.Client

	format string
	column int
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{
		in:  in,
		out: out,
		newRedis: func(addr, password string) *goredis.Client {
			return goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
		},
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "trendctl",
		Short: "Peaks, valleys and trend decomposition of a price series",
		Long: `Reads prices from a file argument or stdin: a JSON array, one number per
line, or CSV (pick the column with --column; a header row is skipped).

Examples:
  trendctl breakdown --preset aggressive closes.txt
  trendctl peaks --period 3 --closest-neighbor 2 < closes.json
  trendctl reload --preset conservative --redis-addr localhost:6379`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return checkFormat(a.format)
		},
	}
	root.PersistentFlags().StringVar(&a.format, "format", formatTable, "Output format (table|json)")
	root.PersistentFlags().IntVar(&a.column, "column", 0, "Zero-based CSV column holding the prices")

	root.AddCommand(
		a.extremaCmd("peaks", "Local maxima of the series", trend.Peaks),
		a.extremaCmd("valleys", "Local minima of the series", trend.Valleys),
		a.lineCmd("peak-trend", "Trend line through the peaks", trend.PeakTrend),
		a.lineCmd("valley-trend", "Trend line through the valleys", trend.ValleyTrend),
		a.overallCmd(),
		a.breakdownCmd(),
		a.presetsCmd(),
		a.historyCmd(),
		a.reloadCmd(),
	)
	return root
}

func (a *app) prices(args []string) ([]float64, error) {
	rc, err := a.openInput(args)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readPrices(rc, a.column)
}

func (a *app) extremaCmd(use, short string, find func([]float64, int, int) ([]trend.Extremum, error)) *cobra.Command {
	var period, neighbor int
	cmd := &cobra.Command{
		Use:   use + " [file]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := a.prices(args)
			if err != nil {
				return err
			}
			ext, err := find(prices, period, neighbor)
			if err != nil {
				return err
			}
			return writeExtrema(a.out, a.format, ext)
		},
	}
	cmd.Flags().IntVar(&period, "period", 5, "Half-width of the comparison window")
	cmd.Flags().IntVar(&neighbor, "closest-neighbor", 5, "Minimum spacing between reported extrema (0 disables merging)")
	return cmd
}

func (a *app) lineCmd(use, short string, fit func([]float64, int) (trend.TrendLine, error)) *cobra.Command {
	var period int
	cmd := &cobra.Command{
		Use:   use + " [file]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := a.prices(args)
			if err != nil {
				return err
			}
			line, err := fit(prices, period)
			if err != nil {
				return err
			}
			return writeLine(a.out, a.format, line)
		},
	}
	cmd.Flags().IntVar(&period, "period", 5, "Half-width of the extremum window")
	return cmd
}

func (a *app) overallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overall-trend [file]",
		Short: "Trend line through every price",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prices, err := a.prices(args)
			if err != nil {
				return err
			}
			line, err := trend.OverallTrend(prices)
			if err != nil {
				return err
			}
			return writeLine(a.out, a.format, line)
		},
	}
}

func (a *app) breakdownCmd() *cobra.Command {
	var cf configFlags
	cmd := &cobra.Command{
		Use:   "breakdown [file]",
		Short: "Split the series into linear trend segments",
		Long: `Split the series into contiguous linear trend segments.

Thresholds come from --preset, from all nine custom threshold flags, or from a
YAML file given with --config. With none of them the default preset is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cf.resolve(cmd)
			if err != nil {
				return err
			}
			prices, err := a.prices(args)
			if err != nil {
				return err
			}
			segs, err := trend.BreakDownTrends(prices, cfg)
			if err != nil {
				return err
			}
			return writeSegments(a.out, a.format, segs)
		},
	}
	cf.register(cmd)
	return cmd
}

func (a *app) presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List the named threshold presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var out []presetOut
			for _, p := range trend.Presets() {
				t, err := trend.PresetConfig(p).Resolve()
				if err != nil {
					return err
				}
				out = append(out, presetOut{Name: p.String(), Thresholds: t})
			}
			return writePresets(a.out, a.format, out)
		},
	}
}

func (a *app) reloadCmd() *cobra.Command {
	var (
		cf               configFlags
		addr, password   string
		period, neighbor int
	)
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Publish new analysis options to running trend engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req trendengine.ReloadRequest
			spec, err := cf.spec(cmd)
			if err != nil {
				return err
			}
			if spec != nil {
				if _, err := spec.Build(); err != nil {
					return err
				}
				req.ConfigSpec = *spec
			}
			if cmd.Flags().Changed("extrema-period") {
				req.ExtremaPeriod = &period
			}
			if cmd.Flags().Changed("extrema-neighbor") {
				req.ExtremaNeighbor = &neighbor
			}
			if spec == nil && req.ExtremaPeriod == nil && req.ExtremaNeighbor == nil {
				return fmt.Errorf("%w: nothing to reload", trend.ErrInvalidConfiguration)
			}

			payload, err := json.Marshal(req)
			if err != nil {
				return err
			}
			client := a.newRedis(addr, password)
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			n, err := client.Publish(ctx, trendengine.ConfigChannel, payload).Result()
			if err != nil {
				return fmt.Errorf("publish reload: %w", err)
			}
			fmt.Fprintf(a.out, "published to %s (%d subscribers)\n", trendengine.ConfigChannel, n)
			return nil
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVar(&addr, "redis-addr", config.GetEnv("REDIS_ADDR", "localhost:6379"), "Redis address")
	cmd.Flags().StringVar(&password, "redis-password", config.GetEnv("REDIS_PASSWORD", ""), "Redis password")
	cmd.Flags().IntVar(&period, "extrema-period", 5, "New extremum window half-width")
	cmd.Flags().IntVar(&neighbor, "extrema-neighbor", 5, "New extremum merge distance")
	return cmd
}
