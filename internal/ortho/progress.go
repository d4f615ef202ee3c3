package ortho

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// progressBar renders an in-place terminal progress bar for grid
// inversion. A nil *progressBar is a no-op, so callers need no checks.
type progressBar struct {
	out       io.Writer
	total     int64
	processed atomic.Int64
	label     string
	barWidth  int
	start     time.Time
	done      chan struct{}
	mu        sync.Mutex
}

func newProgressBar(label string, total int64) *progressBar {
	pb := &progressBar{
		out:      os.Stderr,
		total:    total,
		label:    label,
		barWidth: 30,
		start:    time.Now(),
		done:     make(chan struct{}),
	}
	go pb.run()
	return pb
}

// Increment marks one more node as inverted. Safe for concurrent use.
func (pb *progressBar) Increment() {
	if pb == nil {
		return
	}
	pb.processed.Add(1)
}

// Finish stops the refresh loop and prints the final state.
func (pb *progressBar) Finish() {
	if pb == nil {
		return
	}
	close(pb.done)
	pb.draw()
	fmt.Fprint(pb.out, "\n")
}

func (pb *progressBar) run() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-pb.done:
			return
		case <-ticker.C:
			pb.draw()
		}
	}
}

func (pb *progressBar) draw() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	processed := pb.processed.Load()
	frac := 1.0
	if pb.total > 0 {
		frac = min(float64(processed)/float64(pb.total), 1)
	}

	filled := int(float64(pb.barWidth) * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.barWidth-filled)

	elapsed := time.Since(pb.start)
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(processed) / secs
	}

	fmt.Fprintf(pb.out, "\r%s [%s] %3.0f%%  %d/%d nodes  %.0f/s  %s\033[K",
		pb.label, bar, frac*100, processed, pb.total, rate, formatDuration(elapsed))
}

// formatDuration formats a duration concisely (e.g. "1m23s", "45s").
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%02ds", m, s)
}
