package chat

import (
	"sync"
	"time"
)

// Entry is one public message in the history log.
type Entry struct {
	Username string
	Text     string
	At       time.Time
}

// String renders the entry the way it is broadcast: "user: text".
func (e Entry) String() string {
	return e.Username + ": " + e.Text
}

// History is the append-only log of public messages in arrival order. It
// is goroutine-safe; entries are never removed.
type History struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// Append records a public message and returns the stored entry.
func (h *History) Append(username, text string, at time.Time) Entry {
	e := Entry{Username: username, Text: text, At: at}
	h.mu.Lock()
	h.entries = append(h.entries, e)
	h.mu.Unlock()
	return e
}

// Last returns the n most recent entries, oldest first. The result has
// min(n, Len()) entries and is never nil.
func (h *History) Last(n int) []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n = max(min(n, len(h.entries)), 0)
	out := make([]Entry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Len returns the number of recorded messages.
func (h *History) Len() int {
	h.mu.RLock()
	n := len(h.entries)
	h.mu.RUnlock()
	return n
}
