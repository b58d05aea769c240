package stream

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate throughput to
// bytesPerSec. The burst is set to 1 MB so a typical chunk goes through in
// one wait.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20 // 1 MB
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// charge waits until n bytes worth of tokens are available. Counts larger
// than the burst are taken in burst-sized pieces since WaitN rejects them.
func charge(ctx context.Context, lim *rate.Limiter, n int64) error {
	if lim == nil {
		return nil
	}
	burst := int64(lim.Burst())
	for n > 0 {
		k := min(n, burst)
		if err := lim.WaitN(ctx, int(k)); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// rateLimitedWriter wraps an io.Writer and enforces a shared rate limit.
type rateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

func (rw *rateLimitedWriter) Write(p []byte) (int, error) {
	if err := charge(rw.ctx, rw.limiter, int64(len(p))); err != nil {
		return 0, err
	}
	return rw.w.Write(p)
}
