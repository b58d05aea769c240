package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bamsammich/zerocopy/internal/stats"
)

const (
	progressBarWidth = 20
	sparklineWidth   = 12
	redrawInterval   = 100 * time.Millisecond
)

// Progress redraws a single status line for one transfer. It only renders
// when attached to a terminal; otherwise Run just ticks the collector so the
// summary rate is meaningful.
type Progress struct {
	w     io.Writer
	stats *stats.Collector
	label string
	tty   bool
	width int

	drawn bool
}

// NewProgress returns a Progress writing to w. width is the terminal width
// the line is truncated to.
func NewProgress(w io.Writer, c *stats.Collector, label string, tty bool, width int) *Progress {
	return &Progress{w: w, stats: c, label: label, tty: tty, width: width}
}

// Run ticks the collector once per second and redraws until ctx is done.
// The status line is cleared before returning.
func (p *Progress) Run(ctx context.Context) {
	// First tick comes quickly to seed the rate history.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	redraw := time.NewTicker(redrawInterval)
	defer redraw.Stop()

	for {
		select {
		case <-ctx.Done():
			p.clear()
			return
		case <-secTicker.C:
			p.stats.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(time.Second)
			}
		case <-redraw.C:
			p.draw()
		}
	}
}

// Line renders the current status line.
func (p *Progress) Line() string {
	s := p.stats.Snapshot()

	var b strings.Builder
	if p.label != "" {
		b.WriteString(p.label)
		b.WriteByte(' ')
	}
	if s.BytesTotal > 0 {
		pct := float64(s.FileBytes) / float64(s.BytesTotal)
		fmt.Fprintf(&b, "%s %3.0f%% ", ProgressBar(pct, progressBarWidth), min(pct, 1)*100)
		fmt.Fprintf(&b, "%s / %s", FormatBytes(s.FileBytes), FormatBytes(s.BytesTotal))
	} else {
		b.WriteString(FormatBytes(s.FileBytes))
	}
	fmt.Fprintf(&b, "  %s %s", FormatRate(p.stats.RollingSpeed(5)), Sparkline(p.stats.History(sparklineWidth), sparklineWidth))
	if s.BytesTotal > 0 {
		fmt.Fprintf(&b, "  eta %s", FormatETA(p.stats.ETA()))
	}

	line := b.String()
	if p.width > 0 {
		if r := []rune(line); len(r) > p.width-1 {
			line = string(r[:p.width-1])
		}
	}
	return line
}

// Summary renders the final line printed after a transfer.
func (p *Progress) Summary() string {
	s := p.stats.Snapshot()
	rate := 0.0
	if secs := s.Elapsed.Seconds(); secs > 0 {
		rate = float64(s.BytesSent) / secs
	}
	return fmt.Sprintf("sent %s in %s (%s), %d calls, %d would-block, %d partial",
		FormatBytes(s.BytesSent), FormatDuration(s.Elapsed), FormatRate(rate),
		s.Attempts, s.WouldBlock, s.Partial)
}

func (p *Progress) draw() {
	if !p.tty {
		return
	}
	fmt.Fprintf(p.w, "\r\033[2K%s", p.Line())
	p.drawn = true
}

func (p *Progress) clear() {
	if !p.drawn {
		return
	}
	fmt.Fprint(p.w, "\r\033[2K")
	p.drawn = false
}
