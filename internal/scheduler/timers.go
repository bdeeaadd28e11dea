package scheduler

import (
	"container/heap"
	"time"
)

type timer struct {
	key   string
	at    time.Time
	index int
}

// timerHeap orders timers by deadline, earliest first.
type timerHeap []*timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Timers is a set of keyed one-shot deadlines. It does not run anything by
// itself: the owner asks for the Next deadline, sleeps until then, and
// collects the Due keys. Timers is not safe for concurrent use.
type Timers struct {
	heap  timerHeap
	byKey map[string]*timer
}

// NewTimers creates an empty timer set.
func NewTimers() *Timers {
	return &Timers{byKey: make(map[string]*timer)}
}

// Set arms key to fire at at, replacing any existing deadline for key.
func (t *Timers) Set(key string, at time.Time) {
	if tm, ok := t.byKey[key]; ok {
		tm.at = at
		heap.Fix(&t.heap, tm.index)
		return
	}
	tm := &timer{key: key, at: at}
	heap.Push(&t.heap, tm)
	t.byKey[key] = tm
}

// Stop disarms key. It reports whether key was armed.
func (t *Timers) Stop(key string) bool {
	tm, ok := t.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&t.heap, tm.index)
	delete(t.byKey, key)
	return true
}

// Armed reports whether key has a pending deadline.
func (t *Timers) Armed(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// Next returns the earliest pending deadline.
func (t *Timers) Next() (time.Time, bool) {
	if len(t.heap) == 0 {
		return time.Time{}, false
	}
	return t.heap[0].at, true
}

// Due disarms and returns every key whose deadline is at or before now, in
// deadline order.
func (t *Timers) Due(now time.Time) []string {
	var keys []string
	for len(t.heap) > 0 && !t.heap[0].at.After(now) {
		tm := heap.Pop(&t.heap).(*timer)
		delete(t.byKey, tm.key)
		keys = append(keys, tm.key)
	}
	return keys
}

// Len returns the number of armed timers.
func (t *Timers) Len() int { return len(t.heap) }
