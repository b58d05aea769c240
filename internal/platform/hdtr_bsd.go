//go:build darwin || (freebsd && (amd64 || arm64 || riscv64)) || (dragonfly && amd64)

package platform

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// sfHdtr mirrors struct sf_hdtr from <sys/socket.h>.
type sfHdtr struct {
	headers  *unix.Iovec
	hdrCnt   int32
	trailers *unix.Iovec
	trlCnt   int32
}

// hdtr holds the iovecs for one call. The caller must keep the request's
// header and trailer slices alive until the syscall returns.
type hdtr struct {
	sf       sfHdtr
	hdr, trl unix.Iovec
}

func newHdtr(header, trailer []byte) *hdtr {
	h := &hdtr{}
	if len(header) > 0 {
		h.hdr.Base = &header[0]
		h.hdr.SetLen(len(header))
		h.sf.headers = &h.hdr
		h.sf.hdrCnt = 1
	}
	if len(trailer) > 0 {
		h.trl.Base = &trailer[0]
		h.trl.SetLen(len(trailer))
		h.sf.trailers = &h.trl
		h.sf.trlCnt = 1
	}
	return h
}

// ptr returns the sf_hdtr pointer to pass to the kernel, or nil when there is
// nothing to prepend or append.
func (h *hdtr) ptr() unsafe.Pointer {
	if h.sf.hdrCnt == 0 && h.sf.trlCnt == 0 {
		return nil
	}
	return unsafe.Pointer(&h.sf)
}
