//go:build linux

package platform

import (
	"math"

	"golang.org/x/sys/unix"
)

// linuxAdapter wraps sendfile(2). Linux has no header/trailer or flag
// arguments, and a zero count transfers nothing.
type linuxAdapter struct {
	caps Capabilities
}

func newAdapter() Adapter {
	dest := Kinds(KindSocket)
	// Since 2.6.33 out_fd may be any file.
	if kernelAtLeast(2, 6, 33) {
		dest = Kinds(KindSocket, KindRegular, KindFIFO, KindCharDevice, KindOther)
	}
	return &linuxAdapter{caps: Capabilities{
		Platform:  "linux",
		Available: true,
		// x/sys/unix uses sendfile64 on 32-bit targets.
		Offset64:  true,
		MaxLength: math.MaxInt,
		DestKinds: dest,
	}}
}

func (a *linuxAdapter) Capabilities() Capabilities { return a.caps }

func (a *linuxAdapter) Sendfile(req Request) (Result, error) {
	for attempt := 0; ; attempt++ {
		off := req.Offset
		n, err := unix.Sendfile(req.Dst, req.Src, &off, int(req.Length))
		res, retry, err := settle(int64(n), err, attempt)
		if !retry {
			return res, err
		}
	}
}
