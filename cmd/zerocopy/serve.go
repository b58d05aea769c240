package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bamsammich/zerocopy/internal/bench"
	"github.com/bamsammich/zerocopy/internal/config"
	"github.com/bamsammich/zerocopy/internal/stats"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr   string
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive connections and report what arrived",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("addr") && a.cfg.Defaults.Addr != nil {
				addr = *a.cfg.Defaults.Addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := bench.Listen(addr, verify, a.logger)
			if err != nil {
				return err
			}
			srv.OnReport = func(r bench.Report) {
				if a.quiet {
					return
				}
				line := fmt.Sprintf("%s  %s  %s in %s", r.ID, r.Remote,
					stats.FormatBytes(r.Bytes), r.Elapsed.Round(time.Millisecond))
				if r.Digest != "" {
					line += "  blake3 " + r.Digest
				}
				fmt.Fprintln(os.Stdout, line)
			}

			rcv := config.Receiver{
				ID:     uuid.NewString(),
				Addr:   srv.Addr(),
				PID:    os.Getpid(),
				Verify: verify,
			}
			if err := config.WriteReceiver(rcv); err != nil {
				a.logger.Warn("could not record receiver address", "error", err)
			} else {
				defer config.RemoveReceiver()
			}

			a.logger.Info("listening", "addr", srv.Addr(), "verify", verify)
			if err := srv.Serve(ctx); err != nil {
				return err
			}
			a.logger.Info("stopped", "connections", srv.Conns(), "bytes", srv.Total())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "address to listen on")
	cmd.Flags().BoolVar(&verify, "verify", false, "hash received bytes (BLAKE3)")
	return cmd
}
