//go:build darwin

package platform

import (
	"math"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// darwinAdapter wraps the macOS sendfile(2):
//
//	sendfile(fd, s, offset, &len, hdtr, flags)
//
// len is value-result. On input it counts header bytes as well as file
// bytes; zero sends until EOF. On return it holds everything sent, including
// on EAGAIN and EINTR. flags is reserved and always zero.
type darwinAdapter struct {
	caps Capabilities
}

func newAdapter() Adapter {
	return &darwinAdapter{caps: Capabilities{
		Platform:  "darwin",
		Available: true,
		Headers:   true,
		Trailers:  true,
		UntilEOF:  true,
		Offset64:  true,
		MaxLength: math.MaxInt64,
		DestKinds: Kinds(KindSocket),
	}}
}

func (a *darwinAdapter) Capabilities() Capabilities { return a.caps }

func (a *darwinAdapter) Sendfile(req Request) (Result, error) {
	h := newHdtr(req.Header, req.Trailer)

	for attempt := 0; ; attempt++ {
		length := req.Length
		if length > 0 {
			length += int64(len(req.Header))
		}
		_, _, errno := unix.Syscall6(
			unix.SYS_SENDFILE,
			uintptr(req.Src),
			uintptr(req.Dst),
			uintptr(req.Offset),
			uintptr(unsafe.Pointer(&length)),
			uintptr(h.ptr()),
			0,
		)
		runtime.KeepAlive(h)
		runtime.KeepAlive(req.Header)
		runtime.KeepAlive(req.Trailer)

		var err error
		if errno != 0 {
			err = errno
		}
		res, retry, err := settle(length, err, attempt)
		if !retry {
			return res, err
		}
	}
}
