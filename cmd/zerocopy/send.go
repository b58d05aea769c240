package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bamsammich/zerocopy/internal/config"
	"github.com/bamsammich/zerocopy/internal/digest"
	"github.com/bamsammich/zerocopy/internal/stats"
	"github.com/bamsammich/zerocopy/internal/stream"
	"github.com/bamsammich/zerocopy/internal/ui"
	"github.com/bamsammich/zerocopy/internal/units"
	"github.com/bamsammich/zerocopy/sendfile"
)

type sendOptions struct {
	addr       string
	offset     int64
	length     int64
	chunk      string
	header     string
	trailer    string
	emulate    bool
	bwlimit    string
	flags      sendfile.Flags
	verify     bool
	noProgress bool
}

func newSendCmd(a *app) *cobra.Command {
	var o sendOptions

	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Send a file region to a receiver with sendfile(2)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applySendDefaults(cmd, a.cfg.Defaults, &o)
			if !cmd.Flags().Changed("addr") && a.cfg.Defaults.Addr == nil {
				if r, err := config.ReadReceiver(); err == nil && r.Addr != "" {
					a.logger.Debug("using running receiver", "addr", r.Addr, "id", r.ID)
					o.addr = r.Addr
				}
			}
			return runSend(a, args[0], o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.addr, "addr", defaultAddr, "receiver address")
	f.Int64Var(&o.offset, "offset", 0, "file offset to start at")
	f.Int64Var(&o.length, "length", -1, "bytes to send (-1 for through end of file)")
	f.StringVar(&o.chunk, "chunk", "4M", "bytes requested per sendfile call (e.g. 64K, 4M)")
	f.StringVar(&o.header, "header", "", "bytes to send before the file region")
	f.StringVar(&o.trailer, "trailer", "", "bytes to send after the file region")
	f.BoolVar(&o.emulate, "emulate", false, "emulate headers and trailers with plain writes where native support is missing")
	f.StringVar(&o.bwlimit, "bwlimit", "", "bandwidth limit (e.g. 100M, 1G)")
	f.Var(&flagValue{flags: &o.flags}, "flag", "native sendfile flag, repeatable (FreeBSD: nodiskio, mnowait, sync, readahead, nocache)")
	f.BoolVar(&o.verify, "verify", false, "print the BLAKE3 digest of everything sent")
	f.BoolVar(&o.noProgress, "no-progress", false, "disable progress display")
	return cmd
}

// applySendDefaults applies config file defaults for flags not explicitly set on the CLI.
func applySendDefaults(cmd *cobra.Command, d config.DefaultsConfig, o *sendOptions) {
	if !cmd.Flags().Changed("addr") && d.Addr != nil {
		o.addr = *d.Addr
	}
	if !cmd.Flags().Changed("chunk") && d.Chunk != nil {
		o.chunk = *d.Chunk
	}
	if !cmd.Flags().Changed("emulate") && d.Emulate != nil {
		o.emulate = *d.Emulate
	}
	if !cmd.Flags().Changed("bwlimit") && d.BWLimit != nil {
		o.bwlimit = *d.BWLimit
	}
}

var flagNames = map[string]sendfile.Flags{
	"nodiskio":  sendfile.NoDiskIO,
	"mnowait":   sendfile.MNoWait,
	"sync":      sendfile.Sync,
	"readahead": sendfile.UserReadahead,
	"nocache":   sendfile.NoCache,
}

// flagValue is a pflag.Value that accumulates --flag names into one flag word.
type flagValue struct {
	flags *sendfile.Flags
	names []string
}

var _ pflag.Value = (*flagValue)(nil)

func (v *flagValue) String() string { return strings.Join(v.names, ",") }
func (*flagValue) Type() string     { return "name" }

func (v *flagValue) Set(val string) error {
	names := strings.Split(val, ",")
	fl, err := parseFlags(names)
	if err != nil {
		return err
	}
	*v.flags = v.flags.With(fl)
	v.names = append(v.names, names...)
	return nil
}

func parseFlags(names []string) (sendfile.Flags, error) {
	var flags sendfile.Flags
	for _, n := range names {
		fl, ok := flagNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return sendfile.Flags{}, fmt.Errorf("unknown flag %q", n)
		}
		flags = flags.With(fl)
	}
	return flags, nil
}

//nolint:gocyclo // CLI entry point wires every option
func runSend(a *app, path string, o sendOptions) error {
	chunk, err := units.ParseSize(o.chunk)
	if err != nil {
		return fmt.Errorf("invalid --chunk: %w", err)
	}
	var limiter *rate.Limiter
	if o.bwlimit != "" {
		bw, err := units.ParseSize(o.bwlimit)
		if err != nil {
			return fmt.Errorf("invalid --bwlimit: %w", err)
		}
		if bw > 0 {
			limiter = stream.NewBWLimiter(bw)
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", o.addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", o.addr, err)
	}
	defer conn.Close()
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("unexpected connection type %T", conn)
	}

	collector := stats.NewCollector()
	sender := &stream.Sender{
		Engine:   sendfile.New(sendfile.WithEmulation(o.emulate)),
		Limiter:  limiter,
		Stats:    collector,
		Logger:   a.logger,
		Chunk:    chunk,
		Flags:    o.flags,
		Fallback: true,
	}

	header, trailer := []byte(o.header), []byte(o.trailer)
	a.logger.Debug("starting send",
		"file", path,
		"addr", o.addr,
		"offset", o.offset,
		"length", o.length,
		"chunk", chunk,
		"emulate", o.emulate,
	)

	progress := ui.NewProgress(os.Stderr, collector, filepath.Base(path),
		ui.IsTTY(os.Stderr.Fd()) && !o.noProgress && !a.quiet, ui.TermWidth(os.Stderr.Fd()))
	progressCtx, stopProgress := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		progress.Run(progressCtx)
	}()

	sent, sendErr := sender.SendRegion(ctx, tcp, f, o.offset, o.length, header, trailer)
	stopProgress()
	wg.Wait()

	if !a.quiet {
		fmt.Fprintln(os.Stderr, progress.Summary())
	}
	if sendErr != nil {
		a.logger.Error("send failed", "error", sendErr, "sent", sent)
		if sent > 0 {
			return &exitError{code: 1} // partial failure
		}
		return &exitError{code: 2}
	}

	if err := tcp.CloseWrite(); err != nil {
		a.logger.Debug("half-close failed", "error", err)
	}

	if o.verify {
		sum, err := sentDigest(f, o.offset, sent-int64(len(header)+len(trailer)), header, trailer)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "blake3 %s\n", sum)
	}
	return nil
}

// sentDigest hashes header, n file bytes from off, and trailer in order, the
// same stream a verifying receiver sees.
func sentDigest(f *os.File, off, n int64, header, trailer []byte) (string, error) {
	if n < 0 {
		return "", errors.New("sent count smaller than header and trailer")
	}
	s := digest.NewSink()
	_, _ = s.Write(header) //nolint:errcheck // hashing never fails
	if _, err := io.Copy(s, io.NewSectionReader(f, off, n)); err != nil {
		return "", fmt.Errorf("hash %s: %w", f.Name(), err)
	}
	_, _ = s.Write(trailer) //nolint:errcheck // hashing never fails
	return s.Sum(), nil
}
