// Package platform translates a uniform sendfile request into the native call
// shape of the operating system the binary was built for. Exactly one adapter
// is compiled in; the others are excluded by build constraints.
package platform

import (
	"errors"
	"math"
)

// maxIntrRetries bounds how many times an adapter re-issues a call that was
// interrupted before moving any bytes.
const maxIntrRetries = 8

// ErrNotImplemented is returned by the stub adapter on platforms without a
// usable sendfile primitive.
var ErrNotImplemented = errors.New("sendfile not implemented on this platform")

// Kind identifies the type of object behind a file descriptor.
type Kind int

const (
	KindOther Kind = iota
	KindRegular
	KindSocket
	KindFIFO
	KindDir
	KindCharDevice
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindSocket:
		return "socket"
	case KindFIFO:
		return "fifo"
	case KindDir:
		return "directory"
	case KindCharDevice:
		return "char_device"
	default:
		return "other"
	}
}

// KindSet is a bit set of descriptor kinds.
type KindSet uint8

// Kinds builds a KindSet from the given kinds.
func Kinds(kinds ...Kind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s |= 1 << k
	}
	return s
}

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool { return s&(1<<k) != 0 }

// FlagSpace identifies whose flag bit layout a flag word uses.
type FlagSpace int

const (
	FlagSpaceNone FlagSpace = iota
	FlagSpaceFreeBSD
)

func (f FlagSpace) String() string {
	switch f {
	case FlagSpaceNone:
		return "none"
	case FlagSpaceFreeBSD:
		return "freebsd"
	default:
		return "unknown"
	}
}

// FreeBSD sendfile(2) flag bits.
const (
	FreeBSDNoDiskIO      uint32 = 0x01
	FreeBSDMNoWait       uint32 = 0x02
	FreeBSDSync          uint32 = 0x04
	FreeBSDUserReadahead uint32 = 0x08
	FreeBSDNoCache       uint32 = 0x10
)

// Capabilities describes what the active adapter can do natively. It is
// computed once when the adapter is constructed and never changes.
type Capabilities struct {
	Platform  string
	Available bool
	Headers   bool
	Trailers  bool
	FlagSpace FlagSpace
	FlagMask  uint32
	// UntilEOF is set when a zero length means "send until end of file".
	UntilEOF  bool
	Offset64  bool
	MaxLength int64
	DestKinds KindSet
}

// MaxOffset returns the largest source offset the native call can address.
func (c Capabilities) MaxOffset() int64 {
	if c.Offset64 {
		return math.MaxInt64
	}
	return math.MaxInt32
}

// Request is one native call. Header and Trailer are only set when the
// adapter supports them natively.
type Request struct {
	Src     int
	Dst     int
	Offset  int64
	Length  int64
	Header  []byte
	Trailer []byte
	Flags   uint32
}

// Result is the normalized native outcome. Sent is the count the kernel
// reported, header and trailer bytes included where the native call has them.
type Result struct {
	Sent        int64
	WouldBlock  bool
	Interrupted bool
}

// Adapter is the per-platform sendfile implementation.
type Adapter interface {
	Capabilities() Capabilities
	Sendfile(req Request) (Result, error)
}

// Failure classifies a native error.
type Failure int

const (
	FailureFatal Failure = iota
	FailureDescriptor
	FailureNotImplemented
	FailureOverflow
	FailureInvalid
)

func (f Failure) String() string {
	switch f {
	case FailureFatal:
		return "fatal"
	case FailureDescriptor:
		return "descriptor"
	case FailureNotImplemented:
		return "not_implemented"
	case FailureOverflow:
		return "overflow"
	case FailureInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Classify maps an error returned by Sendfile, Stat or WriteAll to a Failure.
func Classify(err error) Failure {
	if errors.Is(err, ErrNotImplemented) {
		return FailureNotImplemented
	}
	return classifyErrno(err)
}

var active = newAdapter()

// Active returns the adapter selected for this build.
//
//nolint:ireturn // one implementation per build
func Active() Adapter {
	return active
}
