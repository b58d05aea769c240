//go:build unix

package sendfile

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"math"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/bamsammich/zerocopy/internal/platform"
)

type fakeResult struct {
	res platform.Result
	err error
}

// fakeAdapter returns scripted results and records the native requests it
// was asked to perform.
type fakeAdapter struct {
	caps    platform.Capabilities
	results []fakeResult
	calls   []platform.Request
}

func (f *fakeAdapter) Capabilities() platform.Capabilities { return f.caps }

func (f *fakeAdapter) Sendfile(req platform.Request) (platform.Result, error) {
	f.calls = append(f.calls, req)
	if len(f.results) == 0 {
		return platform.Result{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.res, r.err
}

func fakeCaps() platform.Capabilities {
	return platform.Capabilities{
		Platform:  "fake",
		Available: true,
		Offset64:  true,
		MaxLength: math.MaxInt64,
		DestKinds: platform.Kinds(platform.KindSocket),
	}
}

func sourceFile(t *testing.T, data []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

// receiver is the accepted side of a loopback TCP connection, collecting
// everything written to the dialed side until that side is closed.
type receiver struct {
	conn   net.Conn
	client net.Conn
	done   chan struct{}
	data   bytes.Buffer
}

// newPair returns the raw, non-blocking fd of a connected TCP socket and the
// receiver reading from its peer.
func newPair(t *testing.T) (int, *receiver) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, err := ln.Accept()
	require.NoError(t, err)

	r := &receiver{conn: server, client: client, done: make(chan struct{})}
	go func() {
		defer close(r.done)
		_, _ = io.Copy(&r.data, server)
	}()
	t.Cleanup(func() {
		client.Close()
		<-r.done
		server.Close()
	})
	return rawFd(t, client.(syscall.Conn)), r
}

// rawFd extracts the descriptor behind a net.Conn. It stays valid until the
// connection is closed.
func rawFd(t *testing.T, c syscall.Conn) int {
	t.Helper()
	rc, err := c.SyscallConn()
	require.NoError(t, err)
	var fd int
	require.NoError(t, rc.Control(func(s uintptr) { fd = int(s) }))
	return fd
}

// bytes closes the sending side and returns everything received.
func (r *receiver) bytes() []byte {
	r.client.Close()
	<-r.done
	return r.data.Bytes()
}

func waitWritable(t *testing.T, fd int) {
	t.Helper()
	//nolint:gosec // G115: fd values are small non-negative integers
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		require.NoError(t, err)
		return
	}
}

// drive is a minimal caller loop: advance by FileBytes, wait on WouldBlock,
// stop on Eof.
func drive(t *testing.T, e *Engine, req Request) int64 {
	t.Helper()
	var total int64
	for range 1 << 20 {
		out, err := e.Transfer(req)
		require.NoError(t, err)
		total += out.FileBytes
		req.Offset += out.FileBytes
		if out.HeaderBytes > 0 {
			req.Header = req.Header[out.HeaderBytes:]
		}
		switch out.Status {
		case Eof:
			return total
		case WouldBlock:
			waitWritable(t, req.Dst)
		}
		if req.Length > 0 {
			assert.LessOrEqual(t, out.FileBytes, int64(req.Length))
		}
	}
	t.Fatal("transfer never reached EOF")
	return total
}

func TestTransferRegion(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, recv := newPair(t)

	out, err := New().Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: 1, Length: 5})
	require.NoError(t, err)
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, int64(5), out.BytesSent)
	assert.Equal(t, int64(5), out.FileBytes)
	assert.Equal(t, "estda", string(recv.bytes()))
}

func TestTransferPastEOF(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, recv := newPair(t)

	for _, length := range []uint64{1, 4096, 1 << 30} {
		out, err := New().Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: 8 + 4096, Length: length})
		require.NoError(t, err)
		assert.Equal(t, Eof, out.Status)
		assert.Zero(t, out.BytesSent)
	}
	assert.Empty(t, recv.bytes())
}

func TestTransferEmptyFile(t *testing.T) {
	src := sourceFile(t, nil)
	dst, recv := newPair(t)

	out, err := New().Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: 0, Length: 4096})
	require.NoError(t, err)
	assert.Equal(t, Eof, out.Status)
	assert.Zero(t, out.BytesSent)
	assert.Empty(t, recv.bytes())
}

func TestTransferNegativeOffset(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, recv := newPair(t)

	for _, off := range []int64{-1, math.MinInt64} {
		out, err := New().Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: off, Length: 4096})
		require.Error(t, err)
		assert.True(t, errors.Is(err, InvalidArgument))
		assert.Equal(t, Outcome{}, out)
	}
	assert.Empty(t, recv.bytes())
}

func TestTransferOffsetLengthOverflow(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, _ := newPair(t)

	_, err := New().Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: math.MaxInt64, Length: 10})
	assert.True(t, errors.Is(err, InvalidArgument))

	_, err = New().Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: math.MaxUint64})
	assert.True(t, errors.Is(err, InvalidArgument))
}

func TestTransferNativeRange(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, _ := newPair(t)

	caps := fakeCaps()
	caps.Offset64 = false
	caps.MaxLength = math.MaxInt32
	fake := &fakeAdapter{caps: caps}
	e := New(withAdapter(fake))

	_, err := e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: math.MaxInt32 + 1})
	assert.True(t, errors.Is(err, Overflow))

	_, err = e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: math.MaxInt32 + 1, Length: 1})
	assert.True(t, errors.Is(err, Overflow))

	assert.Empty(t, fake.calls)
}

func TestTransferSourceKind(t *testing.T) {
	dst, _ := newPair(t)

	sock, _ := newPair(t)
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	dir, err := os.Open(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()

	fake := &fakeAdapter{caps: fakeCaps()}
	e := New(withAdapter(fake))
	for name, fd := range map[string]int{"socket": sock, "pipe": int(r.Fd()), "dir": int(dir.Fd())} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Transfer(Request{Src: fd, Dst: dst, Length: 16})
			assert.True(t, errors.Is(err, UnsupportedDescriptor))
		})
	}
	assert.Empty(t, fake.calls)
}

func TestTransferDestinationKind(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dir, err := os.Open(t.TempDir())
	require.NoError(t, err)
	defer dir.Close()
	other := sourceFile(t, []byte("x"))

	fake := &fakeAdapter{caps: fakeCaps()}
	e := New(withAdapter(fake))

	_, err = e.Transfer(Request{Src: int(src.Fd()), Dst: int(dir.Fd()), Length: 4})
	assert.True(t, errors.Is(err, UnsupportedDescriptor))

	_, err = e.Transfer(Request{Src: int(src.Fd()), Dst: int(other.Fd()), Length: 4})
	assert.True(t, errors.Is(err, UnsupportedDescriptor))

	// A file destination is fine once the platform accepts it.
	fake.caps.DestKinds = platform.Kinds(platform.KindSocket, platform.KindRegular)
	fake.results = []fakeResult{{res: platform.Result{Sent: 4}}}
	out, err := New(withAdapter(fake)).Transfer(Request{Src: int(src.Fd()), Dst: int(other.Fd()), Length: 4})
	require.NoError(t, err)
	assert.Equal(t, Complete, out.Status)
}

func TestTransferZeroLengthDivergence(t *testing.T) {
	data := []byte("testdata")
	src := sourceFile(t, data)
	dst, recv := newPair(t)

	e := New()
	out, err := e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: 0})
	require.NoError(t, err)

	if e.Capabilities().UntilEOF {
		assert.Equal(t, Complete, out.Status)
		assert.Equal(t, int64(len(data)), out.FileBytes)
		assert.Equal(t, data, recv.bytes())
		return
	}
	assert.Equal(t, Complete, out.Status)
	assert.Zero(t, out.BytesSent)
	assert.Empty(t, recv.bytes())
}

func TestZeroLengthFakes(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, _ := newPair(t)

	zero := &fakeAdapter{caps: fakeCaps()}
	out, err := New(withAdapter(zero)).Transfer(Request{Src: int(src.Fd()), Dst: dst})
	require.NoError(t, err)
	assert.Equal(t, Outcome{Status: Complete}, out)
	assert.Empty(t, zero.calls, "zero-means-zero platforms must not call the kernel")

	caps := fakeCaps()
	caps.UntilEOF = true
	untilEOF := &fakeAdapter{caps: caps, results: []fakeResult{{res: platform.Result{Sent: 8}}}}
	out, err = New(withAdapter(untilEOF)).Transfer(Request{Src: int(src.Fd()), Dst: dst})
	require.NoError(t, err)
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, int64(8), out.FileBytes)
	require.Len(t, untilEOF.calls, 1)
	assert.Zero(t, untilEOF.calls[0].Length)
}

func TestTransferClassification(t *testing.T) {
	src := sourceFile(t, bytes.Repeat([]byte("a"), 8192))
	dst, _ := newPair(t)

	tests := []struct {
		name   string
		result fakeResult
		want   Status
		kind   Kind
	}{
		{"complete", fakeResult{res: platform.Result{Sent: 4096}}, Complete, 0},
		{"partial", fakeResult{res: platform.Result{Sent: 100}}, Partial, 0},
		{"eof", fakeResult{res: platform.Result{}}, Eof, 0},
		{"would block", fakeResult{res: platform.Result{WouldBlock: true}}, WouldBlock, 0},
		{"would block after progress", fakeResult{res: platform.Result{Sent: 10, WouldBlock: true}}, Partial, 0},
		{"interrupted", fakeResult{res: platform.Result{Interrupted: true}}, StatusError, Interrupted},
		{"fatal", fakeResult{err: unix.EPIPE}, StatusError, Fatal},
		{"not a socket", fakeResult{err: unix.ENOTSOCK}, StatusError, UnsupportedDescriptor},
		{"no syscall", fakeResult{err: unix.ENOSYS}, StatusError, NotImplemented},
		{"stub", fakeResult{err: platform.ErrNotImplemented}, StatusError, NotImplemented},
		{"overflow", fakeResult{err: unix.EOVERFLOW}, StatusError, Overflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAdapter{caps: fakeCaps(), results: []fakeResult{tt.result}}
			out, err := New(withAdapter(fake)).Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: 4096})
			assert.Equal(t, tt.want, out.Status)
			if tt.kind == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestTransferFatalCarriesErrno(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, _ := newPair(t)

	fake := &fakeAdapter{caps: fakeCaps(), results: []fakeResult{{err: unix.ECONNRESET}}}
	_, err := New(withAdapter(fake)).Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: 4})

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, Fatal, serr.Kind)
	assert.Equal(t, unix.ECONNRESET, serr.Errno)
	assert.True(t, errors.Is(err, unix.ECONNRESET))
}

func TestTransferStub(t *testing.T) {
	e := New(withAdapter(&fakeAdapter{caps: platform.Capabilities{Platform: "plan9"}}))
	assert.False(t, e.Available())
	assert.False(t, e.Capabilities().Available)

	_, err := e.Transfer(Request{Src: 0, Dst: 1, Length: 1})
	assert.True(t, errors.Is(err, NotImplemented))

	_, err = e.Transfer(Request{Offset: -1})
	assert.True(t, errors.Is(err, NotImplemented))
}

func TestTransferFlags(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, _ := newPair(t)
	req := Request{Src: int(src.Fd()), Dst: dst, Length: 8, Flags: NoDiskIO}

	none := &fakeAdapter{caps: fakeCaps()}
	_, err := New(withAdapter(none)).Transfer(req)
	assert.True(t, errors.Is(err, UnsupportedFeature))
	assert.Empty(t, none.calls)

	_, err = New(withAdapter(none), WithEmulation(true)).Transfer(req)
	require.NoError(t, err)
	require.Len(t, none.calls, 1)
	assert.Zero(t, none.calls[0].Flags)

	caps := fakeCaps()
	caps.FlagSpace = FlagSpaceFreeBSD
	caps.FlagMask = platform.FreeBSDNoDiskIO | platform.FreeBSDSync
	bsd := &fakeAdapter{caps: caps}

	req.Flags = Flags{Space: FlagSpaceFreeBSD, Bits: platform.FreeBSDNoDiskIO | 0x100}
	_, err = New(withAdapter(bsd)).Transfer(req)
	require.NoError(t, err)
	require.Len(t, bsd.calls, 1)
	assert.Equal(t, platform.FreeBSDNoDiskIO, bsd.calls[0].Flags, "unknown bits are ignored")

	req.Flags = Flags{Space: FlagSpace(7), Bits: 1}
	_, err = New(withAdapter(bsd)).Transfer(req)
	assert.True(t, errors.Is(err, InvalidArgument), "foreign flag space is a configuration error")
}

func TestHeaderTrailerRequireEmulation(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, recv := newPair(t)

	fake := &fakeAdapter{caps: fakeCaps()}
	e := New(withAdapter(fake))

	_, err := e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: 8, Header: []byte("h")})
	assert.True(t, errors.Is(err, UnsupportedFeature))
	_, err = e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: 8, Trailer: []byte("t")})
	assert.True(t, errors.Is(err, UnsupportedFeature))

	assert.Empty(t, fake.calls)
	assert.Empty(t, recv.bytes())
}

func TestNativeHeaderAccounting(t *testing.T) {
	src := sourceFile(t, bytes.Repeat([]byte("a"), 100))
	dst, _ := newPair(t)

	caps := fakeCaps()
	caps.Headers = true
	caps.Trailers = true
	hdr, trl := []byte("HEAD"), []byte("TAIL")

	tests := []struct {
		name                  string
		sent                  int64
		status                Status
		header, file, trailer int64
	}{
		{"everything", 4 + 50 + 4, Complete, 4, 50, 4},
		{"partial header", 2, Partial, 2, 0, 0},
		{"header and some file", 4 + 10, Partial, 4, 10, 0},
		{"partial trailer", 4 + 50 + 1, Partial, 4, 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAdapter{caps: caps, results: []fakeResult{{res: platform.Result{Sent: tt.sent}}}}
			out, err := New(withAdapter(fake)).Transfer(Request{
				Src: int(src.Fd()), Dst: dst, Length: 50, Header: hdr, Trailer: trl,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.sent, out.BytesSent)
			assert.Equal(t, tt.header, out.HeaderBytes)
			assert.Equal(t, tt.file, out.FileBytes)
			assert.Equal(t, tt.trailer, out.TrailerBytes)

			require.Len(t, fake.calls, 1)
			assert.Equal(t, hdr, fake.calls[0].Header)
			assert.Equal(t, trl, fake.calls[0].Trailer)
		})
	}
}

func TestNativeHeaderPastEOFStillCalls(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, _ := newPair(t)

	caps := fakeCaps()
	caps.Headers = true
	fake := &fakeAdapter{caps: caps, results: []fakeResult{{res: platform.Result{Sent: 4}}}}
	out, err := New(withAdapter(fake)).Transfer(Request{
		Src: int(src.Fd()), Dst: dst, Offset: 100, Length: 10, Header: []byte("HEAD"),
	})
	require.NoError(t, err)
	assert.Equal(t, Eof, out.Status)
	assert.Equal(t, int64(4), out.BytesSent)
	assert.Equal(t, int64(4), out.HeaderBytes)
	assert.Len(t, fake.calls, 1)
}

func TestHeaderEmulation(t *testing.T) {
	data := make([]byte, 64*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)
	src := sourceFile(t, data)
	dst, recv := newPair(t)

	header := bytes.Repeat([]byte("x"), 512)
	e := New(WithEmulation(true))
	sent := drive(t, e, Request{Src: int(src.Fd()), Dst: dst, Length: 4096, Header: header})
	assert.Equal(t, int64(len(data)), sent)

	want := append(append([]byte{}, header...), data...)
	assert.Equal(t, blake3.Sum256(want), blake3.Sum256(recv.bytes()))
}

func TestTrailerEmulation(t *testing.T) {
	src := sourceFile(t, []byte("abcde"))
	dst, recv := newPair(t)

	e := New(WithEmulation(true))
	out, err := e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: 4096, Trailer: []byte("12345")})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.FileBytes)

	if out.TrailerBytes == 0 {
		// Emulated trailers wait for the call that reaches EOF.
		assert.Equal(t, Partial, out.Status)
		out, err = e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: 5, Length: 4096, Trailer: []byte("12345")})
		require.NoError(t, err)
		assert.Equal(t, Eof, out.Status)
	}
	assert.Equal(t, int64(5), out.TrailerBytes)
	assert.Equal(t, "abcde12345", string(recv.bytes()))
}

func TestEmulatedTrailerWaitsForEOF(t *testing.T) {
	src := sourceFile(t, []byte("abcdefgh"))
	dst, recv := newPair(t)

	fake := &fakeAdapter{caps: fakeCaps(), results: []fakeResult{{res: platform.Result{Sent: 4}}}}
	e := New(withAdapter(fake), WithEmulation(true))
	out, err := e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Length: 4, Trailer: []byte("T")})
	require.NoError(t, err)
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, int64(4), out.BytesSent)
	assert.Zero(t, out.TrailerBytes)

	out, err = e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: 8, Length: 1, Trailer: []byte("T")})
	require.NoError(t, err)
	assert.Equal(t, Eof, out.Status)
	assert.Equal(t, int64(1), out.TrailerBytes)
	assert.Equal(t, "T", string(recv.bytes()))
}

func TestEmulatedTrailerChunked(t *testing.T) {
	src := sourceFile(t, []byte("abcdefgh"))
	dst, recv := newPair(t)

	e := New(WithEmulation(true))
	if !e.Available() || e.Capabilities().Trailers {
		t.Skip("needs an adapter without native trailers")
	}
	trailer := []byte("T")
	for _, off := range []int64{0, 4} {
		out, err := e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: off, Length: 4, Trailer: trailer})
		require.NoError(t, err)
		assert.Equal(t, Complete, out.Status)
		assert.Equal(t, int64(4), out.BytesSent)
		assert.Zero(t, out.TrailerBytes)
	}
	out, err := e.Transfer(Request{Src: int(src.Fd()), Dst: dst, Offset: 8, Length: 1, Trailer: trailer})
	require.NoError(t, err)
	assert.Equal(t, Eof, out.Status)
	assert.Equal(t, int64(1), out.TrailerBytes)
	assert.Equal(t, "abcdefghT", string(recv.bytes()))
}

func TestZeroLengthWithHeaderRejected(t *testing.T) {
	src := sourceFile(t, []byte("testdata"))
	dst, recv := newPair(t)

	fake := &fakeAdapter{caps: fakeCaps()}
	e := New(withAdapter(fake), WithEmulation(true))
	for name, req := range map[string]Request{
		"header":  {Src: int(src.Fd()), Dst: dst, Header: []byte("HDR")},
		"trailer": {Src: int(src.Fd()), Dst: dst, Trailer: []byte("TRL")},
	} {
		t.Run(name, func(t *testing.T) {
			out, err := e.Transfer(req)
			assert.True(t, errors.Is(err, InvalidArgument), "got %v", err)
			assert.Equal(t, Outcome{}, out)
		})
	}
	assert.Empty(t, fake.calls)

	// Until-EOF platforms send the whole file, so the header goes out with it.
	caps := fakeCaps()
	caps.UntilEOF = true
	untilEOF := &fakeAdapter{caps: caps, results: []fakeResult{{res: platform.Result{Sent: 8}}}}
	out, err := New(withAdapter(untilEOF), WithEmulation(true)).Transfer(Request{
		Src: int(src.Fd()), Dst: dst, Header: []byte("HDR"),
	})
	require.NoError(t, err)
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, int64(3), out.HeaderBytes)
	assert.Equal(t, int64(11), out.BytesSent)
	assert.Equal(t, "HDR", string(recv.bytes()))
}

func TestNativeTrailerAfterShortRegion(t *testing.T) {
	src := sourceFile(t, []byte("abcde"))
	dst, _ := newPair(t)

	caps := fakeCaps()
	caps.Trailers = true
	fake := &fakeAdapter{caps: caps, results: []fakeResult{{res: platform.Result{Sent: 8}}}}
	out, err := New(withAdapter(fake)).Transfer(Request{
		Src: int(src.Fd()), Dst: dst, Length: 4096, Trailer: []byte("TRL"),
	})
	require.NoError(t, err)
	assert.Equal(t, Eof, out.Status, "the trailer is out and must not be sent again")
	assert.Equal(t, int64(8), out.BytesSent)
	assert.Equal(t, int64(5), out.FileBytes)
	assert.Equal(t, int64(3), out.TrailerBytes)

	// A trailer cut short still asks for another call.
	fake.results = []fakeResult{{res: platform.Result{Sent: 6}}}
	out, err = New(withAdapter(fake)).Transfer(Request{
		Src: int(src.Fd()), Dst: dst, Length: 4096, Trailer: []byte("TRL"),
	})
	require.NoError(t, err)
	assert.Equal(t, Partial, out.Status)
}

func TestEmulatedTrailerNotOnPartial(t *testing.T) {
	src := sourceFile(t, []byte("abcdefgh"))
	dst, recv := newPair(t)

	fake := &fakeAdapter{caps: fakeCaps(), results: []fakeResult{{res: platform.Result{Sent: 2}}}}
	out, err := New(withAdapter(fake), WithEmulation(true)).Transfer(Request{
		Src: int(src.Fd()), Dst: dst, Length: 4, Trailer: []byte("T"),
	})
	require.NoError(t, err)
	assert.Equal(t, Partial, out.Status)
	assert.Zero(t, out.TrailerBytes)
	assert.Empty(t, recv.bytes())
}

func TestWholeFileInChunks(t *testing.T) {
	data := bytes.Repeat([]byte("12345abcde"), 1024*1024)
	src := sourceFile(t, data)
	dst, recv := newPair(t)

	sent := drive(t, New(), Request{Src: int(src.Fd()), Dst: dst, Length: 4096})
	assert.Equal(t, int64(len(data)), sent)
	assert.Equal(t, blake3.Sum256(data), blake3.Sum256(recv.bytes()))
}

func TestSendAtOffset(t *testing.T) {
	data := bytes.Repeat([]byte("12345abcde"), 100*1024)
	src := sourceFile(t, data)
	dst, recv := newPair(t)

	half := int64(len(data) / 2)
	sent := drive(t, New(), Request{Src: int(src.Fd()), Dst: dst, Offset: half, Length: 4096})
	assert.Equal(t, int64(len(data))-half, sent)
	assert.Equal(t, blake3.Sum256(data[half:]), blake3.Sum256(recv.bytes()))
}

func TestConcurrentIndependentPairs(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 50*1024)
	e := New()

	const pairs = 4
	srcs := make([]*os.File, pairs)
	dsts := make([]int, pairs)
	recvs := make([]*receiver, pairs)
	for i := range pairs {
		srcs[i] = sourceFile(t, data)
		dsts[i], recvs[i] = newPair(t)
	}

	var wg sync.WaitGroup
	wg.Add(pairs)
	for i := range pairs {
		go func() {
			defer wg.Done()
			drive(t, e, Request{Src: int(srcs[i].Fd()), Dst: dsts[i], Length: 8192})
		}()
	}
	wg.Wait()

	for i := range pairs {
		assert.Equal(t, blake3.Sum256(data), blake3.Sum256(recvs[i].bytes()))
	}
}
