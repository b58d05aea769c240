package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/zerocopy/internal/bench"
	"github.com/bamsammich/zerocopy/internal/config"
	"github.com/bamsammich/zerocopy/internal/units"
)

type benchOptions struct {
	size     string
	duration time.Duration
	chunk    string
	dir      string
}

func newBenchCmd(a *app) *cobra.Command {
	var o benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Compare send() and sendfile() throughput over loopback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyBenchDefaults(cmd, a.cfg, &o); err != nil {
				return err
			}
			return runBench(a, o)
		},
	}
	cmd.Flags().StringVar(&o.size, "size", "256M", "size of the temporary source file")
	cmd.Flags().DurationVar(&o.duration, "duration", bench.DefaultDuration, "time spent on each strategy")
	cmd.Flags().StringVar(&o.chunk, "chunk", "64K", "bytes requested per sendfile call")
	cmd.Flags().StringVar(&o.dir, "dir", "", "directory for the temporary file (default: system temp dir)")
	return cmd
}

// applyBenchDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyBenchDefaults(cmd *cobra.Command, cfg config.Config, o *benchOptions) error {
	if !cmd.Flags().Changed("size") && cfg.Bench.Size != nil {
		o.size = *cfg.Bench.Size
	}
	if !cmd.Flags().Changed("duration") && cfg.Bench.Duration != nil {
		d, err := time.ParseDuration(*cfg.Bench.Duration)
		if err != nil {
			return fmt.Errorf("config bench.duration: %w", err)
		}
		o.duration = d
	}
	if !cmd.Flags().Changed("chunk") && cfg.Defaults.Chunk != nil {
		o.chunk = *cfg.Defaults.Chunk
	}
	return nil
}

func runBench(a *app, o benchOptions) error {
	size, err := units.ParseSize(o.size)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}
	chunk, err := units.ParseSize(o.chunk)
	if err != nil {
		return fmt.Errorf("invalid --chunk: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := bench.Run(ctx, bench.Options{
		Size:     size,
		Duration: o.duration,
		Chunk:    chunk,
		Dir:      o.dir,
		Logger:   a.logger,
	})
	for _, r := range results {
		fmt.Fprintln(os.Stdout, bench.FormatResult(r))
	}
	if err != nil {
		return fmt.Errorf("benchmark: %w", err)
	}
	if err := bench.Check(results); err != nil {
		return err
	}
	if len(results) == 2 {
		fmt.Fprintf(os.Stdout, "sendfile/send throughput: %.2fx\n", bench.Speedup(results[0], results[1]))
	}
	return nil
}
