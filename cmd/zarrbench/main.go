// Package main provides the CLI entry point for zarrbench, a write and
// append throughput benchmark for chunked-array (Zarr) backends.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/zarrbench/backend"
	"github.com/weiihann/zarrbench/bench"
	"github.com/weiihann/zarrbench/plot"
	"github.com/weiihann/zarrbench/report"
	"github.com/weiihann/zarrbench/workload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root, err := newRootCmd(newViper(), os.Stdout, os.Stderr)
	if err == nil {
		err = root.ExecuteContext(ctx)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper, stdout, stderr io.Writer) (*cobra.Command, error) {
	var cfgFile string

	root := &cobra.Command{
		Use:   "zarrbench",
		Short: "Chunked-array write and append throughput benchmark",
		Long: `Zarrbench grows a synthetic uint8 array and writes it through each
Zarr backend until a data-volume cap is reached, then reports the average
bandwidth of every backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return readConfigFile(v, cfgFile)
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (yaml, toml or json)")

	if err := bindFlags(root, v); err != nil {
		return nil, err
	}

	root.AddCommand(
		newWriteCmd(v),
		newAppendCmd(v),
		newAllCmd(v),
		newBackendsCmd(v),
	)

	return root, nil
}

func newWriteCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Benchmark full-array writes of growing size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlag(keyWriteGB, cmd.Flags().Lookup("gb")); err != nil {
				return err
			}

			return execute(cmd, v, func(ctx context.Context, b *bench.Benchmark, cfg runConfig, c *charts) ([]backend.Result, error) {
				return b.RunWriteTests(ctx, bench.RunOptions{
					TargetGB:    cfg.writeGB,
					ShowResults: cfg.format == formatTable,
					Backend:     cfg.backend,
					Series:      c.writeSeries,
					Averages:    c.writeBars,
				})
			})
		},
	}

	cmd.Flags().Float64("gb", 1, "Soft cap in GiB for the largest array written")

	return cmd
}

func newAppendCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Benchmark appending fixed-size increments to a growing array",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlag(keyAppendGB, cmd.Flags().Lookup("gb")); err != nil {
				return err
			}

			return execute(cmd, v, func(ctx context.Context, b *bench.Benchmark, cfg runConfig, c *charts) ([]backend.Result, error) {
				return b.RunAppendTests(ctx, bench.RunOptions{
					TargetGB:    cfg.appendGB,
					ShowResults: cfg.format == formatTable,
					Backend:     cfg.backend,
					Series:      c.appendSeries,
					Averages:    c.appendBars,
				})
			})
		},
	}

	cmd.Flags().Float64("gb", 1, "Soft cap in GiB for the appended array")

	return cmd
}

func newAllCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the append benchmark, then the write benchmark",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlag(keyWriteGB, cmd.Flags().Lookup(keyWriteGB)); err != nil {
				return err
			}

			if err := v.BindPFlag(keyAppendGB, cmd.Flags().Lookup(keyAppendGB)); err != nil {
				return err
			}

			return execute(cmd, v, func(ctx context.Context, b *bench.Benchmark, cfg runConfig, c *charts) ([]backend.Result, error) {
				return b.RunAllTests(ctx, bench.AllOptions{
					AppendGB:       cfg.appendGB,
					WriteGB:        cfg.writeGB,
					Backend:        cfg.backend,
					AppendSeries:   c.appendSeries,
					AppendAverages: c.appendBars,
					WriteSeries:    c.writeSeries,
					WriteAverages:  c.writeBars,
				})
			})
		},
	}

	cmd.Flags().Float64(keyWriteGB, 1, "Soft cap in GiB for the write benchmark")
	cmd.Flags().Float64(keyAppendGB, 1, "Soft cap in GiB for the append benchmark")

	return cmd
}

func newBackendsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the available backends and their capabilities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			reg := backend.Default(v.GetString(keyWorkDir), workload.NewGenerator(1), logger)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCAPABILITIES\tPATH")

			for _, a := range reg.Adapters() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Name(), a.Capabilities(), a.Path())
			}

			return tw.Flush()
		},
	}
}

// charts holds the optional plot sinks for one invocation. Nil fields
// disable plotting.
type charts struct {
	writeSeries  *plot.Chart
	writeBars    *plot.Chart
	appendSeries *plot.Chart
	appendBars   *plot.Chart
}

func newCharts(enabled bool) *charts {
	if !enabled {
		return &charts{}
	}

	return &charts{
		writeSeries:  plot.NewChart("Write bandwidth by array size", "GB", "GBps"),
		writeBars:    plot.NewChart("Average write bandwidth (GBps)", "", ""),
		appendSeries: plot.NewChart("Append bandwidth by append number", "append", "GBps"),
		appendBars:   plot.NewChart("Average append bandwidth (GBps)", "", ""),
	}
}

func (c *charts) all() []*plot.Chart {
	var out []*plot.Chart
	for _, ch := range []*plot.Chart{c.appendSeries, c.appendBars, c.writeSeries, c.writeBars} {
		if ch != nil && (len(ch.Series()) > 0 || len(ch.Bars()) > 0) {
			out = append(out, ch)
		}
	}

	return out
}

type runFunc func(ctx context.Context, b *bench.Benchmark, cfg runConfig, c *charts) ([]backend.Result, error)

func execute(cmd *cobra.Command, v *viper.Viper, run runFunc) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))

	logger.InfoContext(ctx, "starting benchmark",
		slog.Any("shape", cfg.shape),
		slog.Any("chunks", cfg.chunks),
		slog.String("backend", cfg.backend),
		slog.String("work_dir", cfg.workDir),
		slog.Int64("seed", cfg.seed),
	)

	if err := os.MkdirAll(cfg.workDir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}

	gen := workload.NewGenerator(cfg.seed)

	b, err := bench.New(cfg.shape, cfg.chunks,
		bench.WithRegistry(backend.Default(cfg.workDir, gen, logger)),
		bench.WithGenerator(gen),
		bench.WithLogger(logger),
		bench.WithOutput(cmd.OutOrStdout()),
	)
	if err != nil {
		return err
	}

	c := newCharts(cfg.plot || cfg.csvPath != "")

	results, err := run(ctx, b, cfg, c)
	if err != nil {
		return err
	}

	if err := emitResults(cmd.OutOrStdout(), cfg, results); err != nil {
		return err
	}

	if err := emitCharts(cmd.OutOrStdout(), cfg, c); err != nil {
		return err
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}

func emitResults(w io.Writer, cfg runConfig, results []backend.Result) error {
	switch cfg.format {
	case formatJSON:
		if err := report.GenerateJSON(w, results); err != nil {
			return fmt.Errorf("generate JSON report: %w", err)
		}
	case formatTOML:
		if err := report.GenerateTOML(w, results); err != nil {
			return fmt.Errorf("generate TOML report: %w", err)
		}
	default:
		if cfg.details && len(results) > 0 {
			if err := report.Details(w, results); err != nil {
				return fmt.Errorf("generate details: %w", err)
			}
		}
	}

	return nil
}

func emitCharts(w io.Writer, cfg runConfig, c *charts) error {
	if cfg.plot {
		for _, ch := range c.all() {
			if err := ch.Render(w); err != nil {
				return fmt.Errorf("render chart: %w", err)
			}
		}
	}

	if cfg.csvPath == "" {
		return nil
	}

	f, err := os.Create(cfg.csvPath)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	for _, ch := range c.all() {
		if err := ch.WriteCSV(f); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}

	return f.Close()
}
