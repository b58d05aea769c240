package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// ReadWrite copies n bytes of f starting at off to w through a pooled
// buffer. A negative n copies through end of file. It is the non-zero-copy
// path: benchmarks compare against it and Sender falls back to it where no
// sendfile exists.
func ReadWrite(ctx context.Context, w io.Writer, f *os.File, off, n int64) (int64, error) {
	bufp := bufPool.Get().(*[]byte) //nolint:errcheck // pool only holds *[]byte
	defer bufPool.Put(bufp)
	buf := *bufp

	var total int64
	for n < 0 || total < n {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		toRead := int64(len(buf))
		if n >= 0 {
			toRead = min(toRead, n-total)
		}

		nr, rerr := f.ReadAt(buf[:toRead], off+total)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, fmt.Errorf("write: %w", werr)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return total, fmt.Errorf("read %s: %w", f.Name(), rerr)
		}
	}
	return total, nil
}
