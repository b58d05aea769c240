// Package stream drives the single-shot sendfile engine across a whole file
// region: it owns the retry loop, parks on the Go netpoller when the socket
// is full, applies an optional bandwidth limit and records statistics.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/zerocopy/internal/stats"
	"github.com/bamsammich/zerocopy/sendfile"
)

// DefaultChunk is the per-call length used when Sender.Chunk is zero.
const DefaultChunk = 4 << 20

// ErrTruncated is returned when the source file ends before the requested
// region has been sent.
var ErrTruncated = errors.New("source ended before requested region")

// Sender sends file regions to stream connections. The zero value uses the
// default engine with no limit.
type Sender struct {
	Engine  *sendfile.Engine
	Limiter *rate.Limiter
	Stats   *stats.Collector
	Logger  *slog.Logger
	// Chunk caps the file bytes requested per call.
	Chunk int64
	Flags sendfile.Flags
	// Fallback switches to ReadWrite when the platform has no sendfile.
	Fallback bool
}

// SendFile sends n bytes of f starting at off to conn. A negative n sends
// through end of file. It returns the number of bytes delivered.
func (s *Sender) SendFile(ctx context.Context, conn syscall.Conn, f *os.File, off, n int64) (int64, error) {
	return s.SendRegion(ctx, conn, f, off, n, nil, nil)
}

// SendRegion is SendFile with header bytes before the region and trailer
// bytes after it.
func (s *Sender) SendRegion(
	ctx context.Context,
	conn syscall.Conn,
	f *os.File,
	off, n int64,
	header, trailer []byte,
) (int64, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	fi, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", f.Name(), err)
	}
	return s.Send(ctx, conn, f, NewCursor(fi.Size(), off, n, header, trailer))
}

// Send runs the cursor to completion. On return c reflects what was sent.
func (s *Sender) Send(ctx context.Context, conn syscall.Conn, f *os.File, c *Cursor) (int64, error) {
	eng := s.engine()
	log := s.logger().With("file", f.Name())
	if s.Stats != nil {
		s.Stats.AddTotal(c.Remaining)
	}

	if !eng.Available() && s.Fallback {
		log.Debug("sendfile unavailable, using read/write", "platform", eng.Capabilities().Platform)
		return s.sendBuffered(ctx, conn, f, c)
	}

	dst, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("destination raw conn: %w", err)
	}
	src, err := f.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("source raw conn: %w", err)
	}

	// A write parked on the netpoller only wakes for readiness or deadline.
	if d, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetWriteDeadline(time.Unix(1, 0)) //nolint:errcheck // best-effort wakeup
		})
		defer stop()
	}

	chunk := s.chunk()
	var loopErr error
	cerr := src.Control(func(sfd uintptr) {
		loopErr = s.loop(ctx, log, eng, dst, int(sfd), c, chunk) //nolint:gosec // G115: fds fit in int
	})
	if cerr != nil {
		return c.Sent, fmt.Errorf("source control: %w", cerr)
	}

	if errors.Is(loopErr, sendfile.NotImplemented) && s.Fallback && c.Sent == 0 {
		log.Debug("sendfile not implemented, using read/write")
		return s.sendBuffered(ctx, conn, f, c)
	}
	if loopErr != nil {
		return c.Sent, loopErr
	}
	if c.Truncated() {
		return c.Sent, fmt.Errorf("%s at offset %d: %w", f.Name(), c.Offset, ErrTruncated)
	}
	return c.Sent, nil
}

func (s *Sender) loop(
	ctx context.Context,
	log *slog.Logger,
	eng *sendfile.Engine,
	dst syscall.RawConn,
	src int,
	c *Cursor,
	chunk int64,
) error {
	for !c.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			out  sendfile.Outcome
			terr error
		)
		werr := dst.Write(func(dfd uintptr) bool {
			req := c.Request(src, int(dfd), chunk, s.Flags) //nolint:gosec // G115: fds fit in int
			out, terr = eng.Transfer(req)
			s.record(out, terr)
			if terr == nil && out.Status == sendfile.WouldBlock {
				return false
			}
			c.Advance(out)
			return true
		})
		if werr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for writable: %w", werr)
		}
		if terr != nil {
			return terr
		}

		log.Debug("sendfile",
			"status", out.Status,
			"offset", c.Offset,
			"sent", out.BytesSent,
			"file", out.FileBytes,
			"remaining", c.Remaining,
		)

		if err := charge(ctx, s.Limiter, out.BytesSent); err != nil {
			return err
		}
	}
	return nil
}

// sendBuffered delivers the rest of c with plain writes.
func (s *Sender) sendBuffered(ctx context.Context, conn syscall.Conn, f *os.File, c *Cursor) (int64, error) {
	w, ok := conn.(io.Writer)
	if !ok {
		return c.Sent, fmt.Errorf("%T: %w", conn, sendfile.NotImplemented)
	}
	if s.Limiter != nil {
		w = &rateLimitedWriter{w: w, limiter: s.Limiter, ctx: ctx}
	}

	if len(c.Header) > 0 {
		n, err := w.Write(c.Header)
		s.add(int64(n))
		c.Sent += int64(n)
		c.Header = c.Header[n:]
		if err != nil {
			return c.Sent, fmt.Errorf("write header: %w", err)
		}
	}

	n, err := ReadWrite(ctx, &countingWriter{w: w, s: s}, f, c.Offset, c.Remaining)
	c.Sent += n
	c.Offset += n
	c.Remaining -= n
	if err != nil {
		return c.Sent, err
	}
	if c.Remaining > 0 {
		return c.Sent, fmt.Errorf("%s at offset %d: %w", f.Name(), c.Offset, ErrTruncated)
	}

	if len(c.Trailer) > 0 {
		n, err := w.Write(c.Trailer)
		s.add(int64(n))
		c.Sent += int64(n)
		c.Trailer = c.Trailer[n:]
		if err != nil {
			return c.Sent, fmt.Errorf("write trailer: %w", err)
		}
	}
	return c.Sent, nil
}

type countingWriter struct {
	w io.Writer
	s *Sender
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.s.add(int64(n))
	return n, err
}

var defaultEngine = sendfile.New()

func (s *Sender) engine() *sendfile.Engine {
	if s.Engine == nil {
		return defaultEngine
	}
	return s.Engine
}

func (s *Sender) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Sender) chunk() int64 {
	chunk := s.Chunk
	if chunk <= 0 {
		chunk = DefaultChunk
	}
	if s.Limiter != nil {
		chunk = min(chunk, int64(s.Limiter.Burst()))
	}
	return chunk
}

func (s *Sender) record(out sendfile.Outcome, err error) {
	if s.Stats != nil {
		s.Stats.Record(out, err)
	}
}

func (s *Sender) add(n int64) {
	if s.Stats != nil && n > 0 {
		s.Stats.AddBytes(n)
	}
}
