//go:build solaris

package platform

import (
	"math"

	"golang.org/x/sys/unix"
)

// solarisAdapter wraps the Solaris/illumos sendfile(3EXT). out may be a
// socket or a regular file. On EAGAIN the kernel still advances *off by the
// bytes it moved, so progress is measured from the offset.
type solarisAdapter struct {
	caps Capabilities
}

func newAdapter() Adapter {
	return &solarisAdapter{caps: Capabilities{
		Platform:  "solaris",
		Available: true,
		Offset64:  true,
		MaxLength: math.MaxInt,
		DestKinds: Kinds(KindSocket, KindRegular),
	}}
}

func (a *solarisAdapter) Capabilities() Capabilities { return a.caps }

func (a *solarisAdapter) Sendfile(req Request) (Result, error) {
	for attempt := 0; ; attempt++ {
		off := req.Offset
		n, err := unix.Sendfile(req.Dst, req.Src, &off, int(req.Length))
		sent := max(int64(n), off-req.Offset)
		res, retry, err := settle(sent, err, attempt)
		if !retry {
			return res, err
		}
	}
}
