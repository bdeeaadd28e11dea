package moderation

import (
	"sync"
	"time"
)

// DefaultThreshold is the report count at which a user is banned.
const DefaultThreshold = 3

// Outcome describes the effect of one report.
type Outcome struct {
	Target string
	Count  int

	// Banned is true when Count has reached the threshold.
	Banned bool

	// UnbanAt is set when this report started a new ban; the caller must
	// arrange for Unban to run at that time. It is zero for reports that
	// land on an already banned user.
	UnbanAt time.Time
}

// Ledger counts reports per username and tracks temporary bans. A user is
// banned once their report count reaches Threshold; the ban lasts Period and
// lifting it resets the count to zero. Reports filed while a ban is pending
// keep counting but do not start another ban.
type Ledger struct {
	Threshold int
	Period    time.Duration

	mu     sync.Mutex
	counts map[string]int
	unban  map[string]time.Time // pending unban deadline per banned user
}

// NewLedger creates a Ledger that bans at threshold reports for period.
func NewLedger(threshold int, period time.Duration) *Ledger {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Ledger{
		Threshold: threshold,
		Period:    period,
		counts:    make(map[string]int),
		unban:     make(map[string]time.Time),
	}
}

// Report files one report against target at now.
func (l *Ledger) Report(target string, now time.Time) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counts[target]++
	out := Outcome{Target: target, Count: l.counts[target]}
	if out.Count < l.Threshold {
		return out
	}

	out.Banned = true
	if _, pending := l.unban[target]; !pending {
		out.UnbanAt = now.Add(l.Period)
		l.unban[target] = out.UnbanAt
	}
	return out
}

// Unban lifts target's ban and resets their report count. It reports
// whether a ban was pending.
func (l *Ledger) Unban(target string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, pending := l.unban[target]
	delete(l.unban, target)
	delete(l.counts, target)
	return pending
}

// Count returns the number of reports currently held against username.
func (l *Ledger) Count(username string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[username]
}

// Banned reports whether username is currently banned.
func (l *Ledger) Banned(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[username] >= l.Threshold
}

// UnbanAt returns the pending unban deadline for username, if any.
func (l *Ledger) UnbanAt(username string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.unban[username]
	return at, ok
}
