package sendfile

import "github.com/bamsammich/zerocopy/internal/platform"

// FlagSpace identifies whose flag bit layout a Flags value uses.
type FlagSpace = platform.FlagSpace

const (
	FlagSpaceNone    = platform.FlagSpaceNone
	FlagSpaceFreeBSD = platform.FlagSpaceFreeBSD
)

// Flags is a platform-specific flag word tagged with its flag space.
type Flags struct {
	Space FlagSpace
	Bits  uint32
}

// FreeBSD flags.
var (
	NoDiskIO      = Flags{Space: FlagSpaceFreeBSD, Bits: platform.FreeBSDNoDiskIO}
	MNoWait       = Flags{Space: FlagSpaceFreeBSD, Bits: platform.FreeBSDMNoWait}
	Sync          = Flags{Space: FlagSpaceFreeBSD, Bits: platform.FreeBSDSync}
	UserReadahead = Flags{Space: FlagSpaceFreeBSD, Bits: platform.FreeBSDUserReadahead}
	NoCache       = Flags{Space: FlagSpaceFreeBSD, Bits: platform.FreeBSDNoCache}
)

// With returns the union of f and g. Both must share a flag space; the
// receiver's space wins when f is empty.
func (f Flags) With(g Flags) Flags {
	if f.Bits == 0 {
		return g
	}
	return Flags{Space: f.Space, Bits: f.Bits | g.Bits}
}

// IsZero reports whether no flag bits are set.
func (f Flags) IsZero() bool { return f.Bits == 0 }

// Request describes one transfer attempt. Src must be a regular file and Dst
// a connected, non-blocking stream socket (or any kind the active platform
// accepts, see Capabilities.FileDestination).
type Request struct {
	Src    int
	Dst    int
	Offset int64
	// Length is the number of file bytes to send. Zero means "until EOF"
	// where Capabilities.UntilEOF is set and "nothing" elsewhere.
	Length  uint64
	Header  []byte
	Trailer []byte
	Flags   Flags
}

// Status is the classification of a successful attempt.
type Status int

const (
	StatusError Status = iota
	Complete
	Partial
	WouldBlock
	Eof
)

func (s Status) String() string {
	switch s {
	case Complete:
		return "complete"
	case Partial:
		return "partial"
	case WouldBlock:
		return "would_block"
	case Eof:
		return "eof"
	default:
		return "error"
	}
}

// Outcome is the result of one attempt.
//
// BytesSent is everything that went to the destination in this call: the
// native count (which includes header and trailer bytes on platforms that
// send them natively) plus any header or trailer bytes the engine emulated.
// HeaderBytes, FileBytes and TrailerBytes split that total; callers advance
// their offset by FileBytes.
type Outcome struct {
	Status       Status
	BytesSent    int64
	HeaderBytes  int64
	FileBytes    int64
	TrailerBytes int64
}

// Capabilities reports what the active platform supports natively.
type Capabilities struct {
	Platform  string
	Available bool
	Headers   bool
	Trailers  bool
	Flags     bool
	FlagSpace FlagSpace
	UntilEOF  bool
	Offset64  bool
	// FileDestination is set when Dst may be something other than a socket.
	FileDestination bool
	MaxLength       int64
}

func capabilitiesFrom(c platform.Capabilities) Capabilities {
	return Capabilities{
		Platform:        c.Platform,
		Available:       c.Available,
		Headers:         c.Headers,
		Trailers:        c.Trailers,
		Flags:           c.FlagSpace != FlagSpaceNone,
		FlagSpace:       c.FlagSpace,
		UntilEOF:        c.UntilEOF,
		Offset64:        c.Offset64,
		FileDestination: c.DestKinds.Has(platform.KindRegular),
		MaxLength:       c.MaxLength,
	}
}
