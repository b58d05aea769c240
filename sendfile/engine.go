package sendfile

import (
	"errors"
	"fmt"
	"math"
	"syscall"

	"github.com/bamsammich/zerocopy/internal/platform"
)

// Engine validates requests, drives the platform adapter and classifies the
// result. An Engine holds no per-transfer state and is safe for concurrent
// use on independent descriptor pairs.
type Engine struct {
	adapter platform.Adapter
	caps    platform.Capabilities
	emulate bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithEmulation enables header/trailer emulation with plain writes on
// platforms that lack native support. It also makes flags on a platform
// without any flag space ignorable hints instead of an error.
func WithEmulation(on bool) Option {
	return func(e *Engine) { e.emulate = on }
}

// withAdapter replaces the platform adapter. Used by tests.
func withAdapter(a platform.Adapter) Option {
	return func(e *Engine) { e.adapter = a }
}

// New returns an Engine bound to the adapter compiled into this binary.
func New(opts ...Option) *Engine {
	e := &Engine{adapter: platform.Active()}
	for _, opt := range opts {
		opt(e)
	}
	e.caps = e.adapter.Capabilities()
	return e
}

var std = New()

// Transfer performs one attempt with the default engine (no emulation).
func Transfer(req Request) (Outcome, error) { return std.Transfer(req) }

// Available reports whether the default engine has a working adapter.
func Available() bool { return std.Available() }

// Capabilities returns what the active platform supports natively.
func (e *Engine) Capabilities() Capabilities { return capabilitiesFrom(e.caps) }

// Available reports whether the adapter is a working implementation rather
// than the NotImplemented stub.
func (e *Engine) Available() bool { return e.caps.Available }

// Emulating reports whether header/trailer emulation is enabled.
func (e *Engine) Emulating() bool { return e.emulate }

// plan is a validated request split into the native call and the parts the
// engine emulates.
type plan struct {
	native      platform.Request
	emuHeader   []byte
	emuTrailer  []byte
	size        int64
	region      int64
	sendRegion  bool
	skipAtEOF   bool
	untilEOF    bool
	nativeExtra int64
}

// Transfer performs exactly one native sendfile attempt. It never loops on
// WouldBlock or partial results; the caller re-invokes with an advanced
// offset.
func (e *Engine) Transfer(req Request) (Outcome, error) {
	p, err := e.prepare(req)
	if err != nil {
		return Outcome{}, err
	}

	// Nothing requested on a platform where zero means zero.
	if !p.sendRegion {
		return Outcome{Status: Complete}, nil
	}

	var out Outcome
	if len(p.emuHeader) > 0 {
		n, werr := platform.WriteAll(p.native.Dst, p.emuHeader)
		out.HeaderBytes = int64(n)
		out.BytesSent = int64(n)
		if werr != nil {
			out.Status = StatusError
			return out, nativeError("header", werr)
		}
	}

	if p.skipAtEOF {
		out.Status = Eof
		return e.finishAtEOF(p, out)
	}

	res, err := e.adapter.Sendfile(p.native)
	e.account(p, res.Sent, &out)
	if err != nil {
		out.Status = StatusError
		return out, nativeError("sendfile", err)
	}
	if res.Interrupted {
		out.Status = StatusError
		return out, newError("sendfile", Interrupted, "retry budget spent before any bytes moved")
	}

	out.Status = e.classify(p, res, out)
	if out.Status == Eof {
		return e.finishAtEOF(p, out)
	}
	return out, nil
}

// prepare validates req and builds the native request.
//
//nolint:gocyclo // validation is a flat sequence of independent checks
func (e *Engine) prepare(req Request) (plan, error) {
	var p plan

	if !e.caps.Available {
		return p, newError("transfer", NotImplemented, "no sendfile on "+e.caps.Platform)
	}
	if req.Offset < 0 {
		return p, newError("transfer", InvalidArgument, fmt.Sprintf("negative offset %d", req.Offset))
	}
	if req.Length > math.MaxInt64 || req.Offset > math.MaxInt64-int64(req.Length) {
		return p, newError("transfer", InvalidArgument,
			fmt.Sprintf("offset %d + length %d overflows", req.Offset, req.Length))
	}
	length := int64(req.Length)
	if length > e.caps.MaxLength {
		return p, newError("transfer", Overflow,
			fmt.Sprintf("length %d exceeds native maximum %d", length, e.caps.MaxLength))
	}
	if req.Offset > e.caps.MaxOffset() {
		return p, newError("transfer", Overflow,
			fmt.Sprintf("offset %d exceeds native maximum %d", req.Offset, e.caps.MaxOffset()))
	}

	srcKind, size, err := platform.Stat(req.Src)
	if err != nil {
		return p, nativeError("fstat source", err)
	}
	if srcKind != platform.KindRegular {
		return p, newError("transfer", UnsupportedDescriptor, "source is a "+srcKind.String())
	}
	dstKind, _, err := platform.Stat(req.Dst)
	if err != nil {
		return p, nativeError("fstat destination", err)
	}
	if dstKind == platform.KindDir || !e.caps.DestKinds.Has(dstKind) {
		return p, newError("transfer", UnsupportedDescriptor, "destination is a "+dstKind.String())
	}

	flags, err := e.flags(req.Flags)
	if err != nil {
		return p, err
	}

	p.native = platform.Request{
		Src:    req.Src,
		Dst:    req.Dst,
		Offset: req.Offset,
		Length: length,
		Flags:  flags,
	}
	p.size = size

	if len(req.Header) > 0 {
		switch {
		case e.caps.Headers:
			p.native.Header = req.Header
		case e.emulate:
			p.emuHeader = req.Header
		default:
			return p, newError("transfer", UnsupportedFeature, "header needs emulation on "+e.caps.Platform)
		}
	}
	if len(req.Trailer) > 0 {
		switch {
		case e.caps.Trailers:
			p.native.Trailer = req.Trailer
		case e.emulate:
			p.emuTrailer = req.Trailer
		default:
			return p, newError("transfer", UnsupportedFeature, "trailer needs emulation on "+e.caps.Platform)
		}
	}
	p.nativeExtra = int64(len(p.native.Header) + len(p.native.Trailer))

	if length == 0 && !e.caps.UntilEOF && (len(req.Header) > 0 || len(req.Trailer) > 0) {
		return p, newError("transfer", InvalidArgument,
			"zero length sends nothing on "+e.caps.Platform+", header and trailer would be dropped")
	}

	switch {
	case length > 0:
		p.sendRegion = true
		p.region = min(length, max(size-req.Offset, 0))
	case e.caps.UntilEOF:
		p.sendRegion = true
		p.untilEOF = true
		p.region = max(size-req.Offset, 0)
	}

	// Past EOF with nothing native to deliver: no syscall needed.
	p.skipAtEOF = req.Offset >= size && p.nativeExtra == 0
	return p, nil
}

// flags resolves the caller's flag word against the adapter's flag space.
func (e *Engine) flags(f Flags) (uint32, error) {
	if f.Bits == 0 {
		return 0, nil
	}
	if e.caps.FlagSpace == FlagSpaceNone {
		if e.emulate {
			return 0, nil
		}
		return 0, newError("transfer", UnsupportedFeature, "flags are not supported on "+e.caps.Platform)
	}
	if f.Space != e.caps.FlagSpace {
		return 0, newError("transfer", InvalidArgument,
			fmt.Sprintf("%s flags used on %s", f.Space, e.caps.Platform))
	}
	return f.Bits & e.caps.FlagMask, nil
}

// account splits the native count into header, file and trailer shares and
// adds them to out. The native count itself is never altered.
func (e *Engine) account(p plan, sent int64, out *Outcome) {
	out.BytesSent += sent

	hdr := min(sent, int64(len(p.native.Header)))
	sent -= hdr
	file := min(sent, p.region)
	sent -= file

	out.HeaderBytes += hdr
	out.FileBytes += file
	out.TrailerBytes += sent
}

func (e *Engine) classify(p plan, res platform.Result, out Outcome) Status {
	headerDone := out.HeaderBytes >= int64(len(p.native.Header)+len(p.emuHeader))
	trailerDone := out.TrailerBytes >= int64(len(p.native.Trailer))

	if res.WouldBlock {
		if out.BytesSent > 0 {
			return Partial
		}
		return WouldBlock
	}
	if out.FileBytes == 0 && headerDone && trailerDone {
		return Eof
	}
	if !headerDone || !trailerDone {
		return Partial
	}
	// The kernel delivered a native trailer after a region cut short by EOF.
	if len(p.native.Trailer) > 0 && out.FileBytes == p.region && p.region < int64(p.native.Length) {
		return Eof
	}
	if p.untilEOF {
		return Complete
	}
	if out.FileBytes == int64(p.native.Length) {
		return Complete
	}
	return Partial
}

func (e *Engine) finishAtEOF(p plan, out Outcome) (Outcome, error) {
	if len(p.emuTrailer) == 0 {
		return out, nil
	}
	return e.writeTrailer(p, out)
}

func (e *Engine) writeTrailer(p plan, out Outcome) (Outcome, error) {
	n, err := platform.WriteAll(p.native.Dst, p.emuTrailer)
	out.TrailerBytes += int64(n)
	out.BytesSent += int64(n)
	if err != nil {
		out.Status = StatusError
		return out, nativeError("trailer", err)
	}
	return out, nil
}

// nativeError converts an adapter or descriptor error into an *Error.
func nativeError(op string, err error) *Error {
	e := &Error{Op: op, Kind: Fatal}
	switch platform.Classify(err) {
	case platform.FailureDescriptor:
		e.Kind = UnsupportedDescriptor
	case platform.FailureNotImplemented:
		e.Kind = NotImplemented
	case platform.FailureOverflow:
		e.Kind = Overflow
	case platform.FailureInvalid:
		e.Kind = InvalidArgument
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		e.Errno = errno
	} else {
		e.Msg = err.Error()
	}
	return e
}
