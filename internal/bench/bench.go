// Package bench compares plain send() against sendfile(2) over loopback TCP
// in terms of throughput and CPU time spent per megabyte.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/zerocopy/internal/stats"
	"github.com/bamsammich/zerocopy/internal/stream"
	"github.com/bamsammich/zerocopy/sendfile"
)

// Strategy names.
const (
	StrategySend     = "send"
	StrategySendfile = "sendfile"
)

// Defaults used when Options fields are zero.
const (
	DefaultSize     = 256 << 20
	DefaultDuration = time.Second
	DefaultChunk    = 64 << 10
)

// Options configures a benchmark run.
type Options struct {
	Size     int64
	Duration time.Duration
	Chunk    int64
	// Dir holds the temporary source file. Defaults to os.TempDir().
	Dir    string
	Logger *slog.Logger
}

// Result holds the measurements of one strategy.
type Result struct {
	Strategy string
	Bytes    int64
	Elapsed  time.Duration
	CPU      time.Duration
	// CPUKnown is false where process CPU time cannot be read.
	CPUKnown bool
	// Calls counts sendfile attempts. Zero for the send strategy.
	Calls int64
	// Note flags anything that makes the numbers not comparable.
	Note string
}

// BytesPerSec returns the measured throughput.
func (r Result) BytesPerSec() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Elapsed.Seconds()
}

// CPUPerMB returns CPU time spent per 1e6 bytes transferred.
func (r Result) CPUPerMB() time.Duration {
	if r.Bytes == 0 {
		return 0
	}
	return time.Duration(float64(r.CPU) / (float64(r.Bytes) / 1e6))
}

// Run creates a temporary file of opts.Size bytes and streams it repeatedly
// to a loopback server for opts.Duration per strategy.
func Run(ctx context.Context, opts Options) ([]Result, error) {
	opts = withDefaults(opts)
	log := opts.Logger.With("run", uuid.NewString())

	path, err := createFile(opts.Dir, opts.Size)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bench file: %w", err)
	}
	defer f.Close()

	srv, err := Listen("127.0.0.1:0", false, log)
	if err != nil {
		return nil, err
	}
	srvCtx, stopSrv := context.WithCancel(ctx)
	defer stopSrv()
	srvDone := make(chan error, 1)
	go func() { srvDone <- srv.Serve(srvCtx) }()

	var results []Result
	for _, strategy := range []string{StrategySend, StrategySendfile} {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		log.Info("benchmarking", "strategy", strategy, "size", opts.Size, "duration", opts.Duration)
		r, err := runOne(ctx, srv.Addr(), f, strategy, opts, log)
		if err != nil {
			return results, fmt.Errorf("%s: %w", strategy, err)
		}
		results = append(results, r)
	}

	stopSrv()
	if err := <-srvDone; err != nil {
		return results, err
	}
	return results, nil
}

func withDefaults(opts Options) Options {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Duration <= 0 {
		opts.Duration = DefaultDuration
	}
	if opts.Chunk <= 0 {
		opts.Chunk = DefaultChunk
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// createFile writes size bytes of 'x' to a uniquely named file in dir.
func createFile(dir string, size int64) (string, error) {
	path := filepath.Join(dir, ".zerocopy-bench-"+uuid.NewString())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create bench file: %w", err)
	}

	chunk := bytes.Repeat([]byte("x"), 1<<20)
	for written := int64(0); written < size; {
		n, err := f.Write(chunk[:min(int64(len(chunk)), size-written)])
		written += int64(n)
		if err != nil {
			f.Close()
			os.Remove(path)
			return "", fmt.Errorf("write bench file: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close bench file: %w", err)
	}
	return path, nil
}

func runOne(
	ctx context.Context,
	addr string,
	f *os.File,
	strategy string,
	opts Options,
	log *slog.Logger,
) (Result, error) {
	r := Result{Strategy: strategy}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return r, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return r, fmt.Errorf("unexpected connection type %T", conn)
	}

	collector := stats.NewCollector()
	sender := &stream.Sender{
		Stats:    collector,
		Logger:   log,
		Chunk:    opts.Chunk,
		Fallback: true,
	}
	if strategy == StrategySendfile && !sendfile.Available() {
		r.Note = "sendfile unavailable, read/write fallback"
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	cpu0, cpuOK := cpuTime()
	start := time.Now()
	for runCtx.Err() == nil {
		var n int64
		switch strategy {
		case StrategySend:
			n, err = stream.ReadWrite(runCtx, tcp, f, 0, -1)
		default:
			n, err = sender.SendFile(runCtx, tcp, f, 0, -1)
		}
		r.Bytes += n
		if err != nil {
			if runCtx.Err() != nil && ctx.Err() == nil {
				break
			}
			return r, err
		}
	}
	r.Elapsed = time.Since(start)
	if cpu1, ok := cpuTime(); ok && cpuOK {
		r.CPU = cpu1 - cpu0
		r.CPUKnown = true
	}
	if strategy == StrategySendfile {
		r.Calls = collector.Snapshot().Attempts
	}
	if ctx.Err() != nil {
		return r, ctx.Err()
	}
	return r, nil
}

// FormatResult renders one result for display.
func FormatResult(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-9s rate %s/s", r.Strategy, formatBytes(r.BytesPerSec()))
	if r.CPUKnown {
		fmt.Fprintf(&b, "  cpu %.2f usec/MB", float64(r.CPUPerMB())/float64(time.Microsecond))
	} else {
		b.WriteString("  cpu n/a")
	}
	if r.Calls > 0 {
		fmt.Fprintf(&b, "  calls %d", r.Calls)
	}
	fmt.Fprintf(&b, "  total %s", formatBytes(float64(r.Bytes)))
	if r.Note != "" {
		b.WriteString("  (" + r.Note + ")")
	}
	return b.String()
}

// Speedup returns how many times faster b is than a, or 0 if a moved nothing.
func Speedup(a, b Result) float64 {
	if a.BytesPerSec() == 0 {
		return 0
	}
	return b.BytesPerSec() / a.BytesPerSec()
}

func formatBytes(b float64) string {
	switch {
	case b >= 1e9:
		return fmt.Sprintf("%.1f GB", b/1e9)
	case b >= 1e6:
		return fmt.Sprintf("%.0f MB", b/1e6)
	case b >= 1e3:
		return fmt.Sprintf("%.0f KB", b/1e3)
	default:
		return fmt.Sprintf("%.0f B", b)
	}
}

var errNothingSent = errors.New("no bytes transferred")

// Check reports an error if any strategy moved no data.
func Check(results []Result) error {
	for _, r := range results {
		if r.Bytes == 0 {
			return fmt.Errorf("%s: %w", r.Strategy, errNothingSent)
		}
	}
	return nil
}
