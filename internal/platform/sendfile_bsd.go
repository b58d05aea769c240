//go:build (freebsd && (amd64 || arm64 || riscv64)) || (dragonfly && amd64)

package platform

import (
	"math"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// bsdAdapter wraps the FreeBSD/DragonFly sendfile(2):
//
//	sendfile(fd, s, offset, nbytes, hdtr, &sbytes, flags)
//
// nbytes == 0 sends until EOF. sbytes counts header, file and trailer bytes
// and is valid on EAGAIN, EBUSY and EINTR.
type bsdAdapter struct {
	caps Capabilities
}

func newAdapter() Adapter {
	caps := Capabilities{
		Platform:  runtime.GOOS,
		Available: true,
		Headers:   true,
		Trailers:  true,
		UntilEOF:  true,
		Offset64:  true,
		MaxLength: math.MaxInt64,
		DestKinds: Kinds(KindSocket),
	}
	if runtime.GOOS == "freebsd" {
		caps.FlagSpace = FlagSpaceFreeBSD
		caps.FlagMask = FreeBSDNoDiskIO | FreeBSDMNoWait | FreeBSDSync |
			FreeBSDUserReadahead | FreeBSDNoCache
	}
	return &bsdAdapter{caps: caps}
}

func (a *bsdAdapter) Capabilities() Capabilities { return a.caps }

func (a *bsdAdapter) Sendfile(req Request) (Result, error) {
	h := newHdtr(req.Header, req.Trailer)
	flags := req.Flags & a.caps.FlagMask

	for attempt := 0; ; attempt++ {
		var sbytes int64
		_, _, errno := unix.Syscall9(
			unix.SYS_SENDFILE,
			uintptr(req.Src),
			uintptr(req.Dst),
			uintptr(req.Offset),
			uintptr(req.Length),
			uintptr(h.ptr()),
			uintptr(unsafe.Pointer(&sbytes)),
			uintptr(flags),
			0, 0,
		)
		runtime.KeepAlive(h)
		runtime.KeepAlive(req.Header)
		runtime.KeepAlive(req.Trailer)

		var err error
		if errno != 0 {
			err = errno
		}
		res, retry, err := settle(sbytes, err, attempt)
		if !retry {
			return res, err
		}
	}
}
