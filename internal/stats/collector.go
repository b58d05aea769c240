package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/zerocopy/sendfile"
)

const ringSize = 60

// Collector tracks transfer attempts and their outcomes using lock-free
// atomic counters. It is owned by the caller loop, never by the engine.
type Collector struct {
	attempts    atomic.Int64
	complete    atomic.Int64
	partial     atomic.Int64
	wouldBlock  atomic.Int64
	eof         atomic.Int64
	failed      atomic.Int64
	bytesSent   atomic.Int64
	fileBytes   atomic.Int64
	bytesTotal  atomic.Int64
	startTime   time.Time

	// Ring buffer, written only by Tick.
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per tick
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotal records the number of file bytes the caller intends to send.
func (c *Collector) SetTotal(bytes int64) { c.bytesTotal.Store(bytes) }

// AddTotal atomically increments the intended byte count.
func (c *Collector) AddTotal(n int64) { c.bytesTotal.Add(n) }

// Record counts one Transfer call.
func (c *Collector) Record(out sendfile.Outcome, err error) {
	c.attempts.Add(1)
	c.bytesSent.Add(out.BytesSent)
	c.fileBytes.Add(out.FileBytes)
	if err != nil {
		c.failed.Add(1)
		return
	}
	switch out.Status {
	case sendfile.Complete:
		c.complete.Add(1)
	case sendfile.Partial:
		c.partial.Add(1)
	case sendfile.WouldBlock:
		c.wouldBlock.Add(1)
	case sendfile.Eof:
		c.eof.Add(1)
	}
}

// AddBytes counts bytes moved outside the engine, e.g. by the buffered path.
func (c *Collector) AddBytes(n int64) {
	c.bytesSent.Add(n)
	c.fileBytes.Add(n)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	Attempts   int64
	Complete   int64
	Partial    int64
	WouldBlock int64
	Eof        int64
	Failed     int64
	BytesSent  int64
	FileBytes  int64
	BytesTotal int64
	Elapsed    time.Duration
}

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Attempts:   c.attempts.Load(),
		Complete:   c.complete.Load(),
		Partial:    c.partial.Load(),
		WouldBlock: c.wouldBlock.Load(),
		Eof:        c.eof.Load(),
		Failed:     c.failed.Load(),
		BytesSent:  c.bytesSent.Load(),
		FileBytes:  c.fileBytes.Load(),
		BytesTotal: c.bytesTotal.Load(),
		Elapsed:    c.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called 1/sec by the
// progress printer.
func (c *Collector) Tick() {
	current := c.bytesSent.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n ticks.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += c.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// History returns the last n per-tick byte deltas, oldest first.
func (c *Collector) History(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	if count <= 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.fileBytes.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"attempts=%d complete=%d partial=%d would_block=%d eof=%d failed=%d sent=%d file=%d",
		s.Attempts, s.Complete, s.Partial, s.WouldBlock, s.Eof, s.Failed,
		s.BytesSent, s.FileBytes,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
