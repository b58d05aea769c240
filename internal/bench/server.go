package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bamsammich/zerocopy/internal/digest"
)

// Report describes one finished inbound connection.
type Report struct {
	ID      uuid.UUID
	Remote  string
	Bytes   int64
	Digest  string // empty unless the server verifies
	Elapsed time.Duration
	Err     error
}

// Server accepts stream connections and drains them, optionally hashing
// everything it receives.
type Server struct {
	ln     net.Listener
	verify bool
	logger *slog.Logger

	// OnReport, when set, is called after each connection ends.
	OnReport func(Report)

	total atomic.Int64
	conns atomic.Int64
	wg    sync.WaitGroup
}

// Listen starts a Server on addr ("127.0.0.1:0" picks a free port).
func Listen(addr string, verify bool, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ln: ln, verify: verify, logger: logger}, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Total returns the number of bytes received across all connections.
func (s *Server) Total() int64 { return s.total.Load() }

// Conns returns the number of connections accepted so far.
func (s *Server) Conns() int64 { return s.conns.Load() }

// Serve accepts connections until ctx is done or the listener fails. It
// waits for in-flight connections before returning.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.conns.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Close stops accepting connections.
func (s *Server) Close() error { return s.ln.Close() }

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	r := Report{ID: uuid.New(), Remote: conn.RemoteAddr().String()}
	log := s.logger.With("conn", r.ID.String(), "remote", r.Remote)
	log.Debug("connection accepted")

	start := time.Now()
	var sink *digest.Sink
	var w io.Writer = io.Discard
	if s.verify {
		sink = digest.NewSink()
		w = sink
	}

	buf := make([]byte, 256*1024)
	n, err := io.CopyBuffer(&countingWriter{w: w, n: &s.total}, conn, buf)
	r.Bytes = n
	r.Elapsed = time.Since(start)
	if err != nil && ctx.Err() == nil {
		r.Err = err
		log.Warn("connection failed", "error", err, "bytes", n)
	}
	if sink != nil {
		r.Digest = sink.Sum()
	}
	log.Debug("connection closed", "bytes", n, "elapsed", r.Elapsed)

	if s.OnReport != nil {
		s.OnReport(r)
	}
}

type countingWriter struct {
	w io.Writer
	n *atomic.Int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n.Add(int64(n))
	return n, err
}
