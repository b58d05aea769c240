package stream

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBWLimiter(t *testing.T) {
	t.Parallel()

	t.Run("burst capped to rate when rate < 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(1024)
		assert.Equal(t, 1024, lim.Burst())
	})

	t.Run("burst is 1MB when rate >= 1MB", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(10 * 1024 * 1024)
		assert.Equal(t, 1<<20, lim.Burst())
	})
}

func TestCharge(t *testing.T) {
	t.Parallel()

	t.Run("nil limiter never waits", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, charge(context.Background(), nil, 1<<40))
	})

	t.Run("counts above burst are split", func(t *testing.T) {
		t.Parallel()
		// 3 KB at 2 KB/s with a 2 KB burst: the second piece waits ~0.5s.
		lim := NewBWLimiter(2048)
		start := time.Now()
		require.NoError(t, charge(context.Background(), lim, 3*1024))
		assert.Greater(t, time.Since(start), 300*time.Millisecond)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()
		lim := NewBWLimiter(1024)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, charge(ctx, lim, 1<<20))
	})
}

func TestRateLimitedWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes all data", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		data := bytes.Repeat([]byte("x"), 4096)
		w := &rateLimitedWriter{w: &buf, limiter: NewBWLimiter(1 << 20), ctx: context.Background()}

		n, err := w.Write(data)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		assert.Equal(t, data, buf.Bytes())
	})

	t.Run("enforces rate limit", func(t *testing.T) {
		t.Parallel()
		// 10 KB at 5 KB/s should take ~1s after the burst.
		var buf bytes.Buffer
		w := &rateLimitedWriter{w: &buf, limiter: NewBWLimiter(5 * 1024), ctx: context.Background()}

		start := time.Now()
		for range 10 {
			_, err := w.Write(bytes.Repeat([]byte("a"), 1024))
			require.NoError(t, err)
		}
		assert.Greater(t, time.Since(start), 500*time.Millisecond,
			"rate limiter should slow writes to ~5KB/s")
		assert.Equal(t, 10*1024, buf.Len())
	})
}
