package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of recording one public message against a
// username's window.
type Decision struct {
	// Count is the number of messages recorded in the window, including
	// this one.
	Count int

	// Limited reports that the sender was already at the cap when this
	// message arrived. The message is still delivered; Limited only
	// triggers the advisory notice.
	Limited bool

	// Reset reports that the previous window had expired and was restarted.
	Reset bool
}

// window is the per-username counter state.
type window struct {
	count int
	start time.Time
}

// Window is a fixed-window message counter keyed by username. A window is
// restarted when more than Period has elapsed since the last recorded
// message. It never blocks delivery: callers decide what to do with
// Decision.Limited.
type Window struct {
	Limit  int
	Period time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// NewWindow creates a Window allowing limit messages per period.
func NewWindow(limit int, period time.Duration) *Window {
	return &Window{
		Limit:   limit,
		Period:  period,
		windows: make(map[string]*window),
	}
}

// Hit records one message from username at now.
func (w *Window) Hit(username string, now time.Time) Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	var d Decision
	win, ok := w.windows[username]
	if !ok {
		win = &window{start: now}
		w.windows[username] = win
	} else if now.Sub(win.start) > w.Period {
		win.count = 0
		d.Reset = true
	}

	if win.count >= w.Limit {
		d.Limited = true
	}

	win.count++
	win.start = now
	d.Count = win.count
	return d
}

// Count returns the number of messages recorded in username's current
// window, or 0 if none.
func (w *Window) Count(username string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if win, ok := w.windows[username]; ok {
		return win.count
	}
	return 0
}
