package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// LineReporter prints progress as a single rewritten line, for terminals
// where the full view is not wanted. It is safe for concurrent use.
type LineReporter struct {
	mu        sync.Mutex
	w         io.Writer
	title     string
	interval  time.Duration
	lastFrame time.Time
	width     int
}

func NewLineReporter(w io.Writer, title string, frameRate int) *LineReporter {
	if frameRate <= 0 {
		frameRate = 10
	}
	return &LineReporter{w: w, title: title, interval: time.Second / time.Duration(frameRate), width: 30}
}

// OnProgress matches the hessian progress callback.
func (r *LineReporter) OnProgress(done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if done != total && time.Since(r.lastFrame) < r.interval {
		return
	}
	r.lastFrame = time.Now()

	filled := 0
	if total > 0 {
		filled = done * r.width / total
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", r.width-filled)
	fmt.Fprintf(r.w, "\r%s [%s] %d/%d", r.title, bar, done, total)
	if done == total {
		fmt.Fprintln(r.w)
	}
}
