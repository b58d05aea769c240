package stream

import "github.com/bamsammich/zerocopy/sendfile"

// Cursor is the explicit state of one file transfer driven through repeated
// sendfile calls: where the next call starts, how many file bytes remain and
// which header and trailer bytes have not gone out yet.
type Cursor struct {
	Offset    int64
	Remaining int64
	// Size is the source file size the cursor was created against.
	Size    int64
	Header  []byte
	Trailer []byte
	// Sent is every byte delivered so far, header and trailer included.
	Sent int64

	eof bool
}

// NewCursor returns a cursor over n bytes of a size-byte file starting at
// off. A negative n means "through end of file". The region is clamped to
// the file.
func NewCursor(size, off, n int64, header, trailer []byte) *Cursor {
	avail := max(size-off, 0)
	if n < 0 || n > avail {
		n = avail
	}
	return &Cursor{
		Offset:    off,
		Remaining: n,
		Size:      size,
		Header:    header,
		Trailer:   trailer,
	}
}

// Request builds the next attempt. chunk caps the file bytes asked for in a
// single call; zero means no cap. The trailer rides only on the call that can
// finish the region.
func (c *Cursor) Request(src, dst int, chunk int64, flags sendfile.Flags) sendfile.Request {
	length := c.Remaining
	if chunk > 0 && length > chunk {
		length = chunk
	}
	req := sendfile.Request{
		Src:    src,
		Dst:    dst,
		Offset: c.Offset,
		Header: c.Header,
		Flags:  flags,
	}
	if length == c.Remaining {
		req.Trailer = c.Trailer
	}
	if length == 0 {
		// Only header or trailer bytes are left. Ask for one byte at EOF so
		// the call means the same thing on every platform.
		req.Offset = max(c.Offset, c.Size)
		req.Length = 1
		return req
	}
	req.Length = uint64(length)
	return req
}

// Advance applies one outcome.
func (c *Cursor) Advance(out sendfile.Outcome) {
	c.Sent += out.BytesSent
	c.Header = c.Header[min(out.HeaderBytes, int64(len(c.Header))):]
	c.Trailer = c.Trailer[min(out.TrailerBytes, int64(len(c.Trailer))):]
	c.Offset += out.FileBytes
	c.Remaining = max(c.Remaining-out.FileBytes, 0)
	if out.Status == sendfile.Eof {
		c.eof = true
	}
}

// Done reports whether nothing is left to send or the file ended.
func (c *Cursor) Done() bool {
	return c.eof || (c.Remaining == 0 && len(c.Header) == 0 && len(c.Trailer) == 0)
}

// Truncated reports whether the file ended before the region was sent.
func (c *Cursor) Truncated() bool {
	return c.eof && (c.Remaining > 0 || len(c.Trailer) > 0)
}
