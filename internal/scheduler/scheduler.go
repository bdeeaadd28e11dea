// Package scheduler implements cancellable delayed work for the chat hub.
// Deadlines live in a min-heap owned by a single goroutine, so firing,
// cancelling and scheduling never race each other: whichever of Cancel or
// Take runs first wins, and the loser sees the message as gone.
package scheduler

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RetiredLimit caps how many cancelled or fired IDs keep their owner for the
// "already cancelled or sent" notice. The oldest entry is evicted first.
const RetiredLimit = 1024

// Message is a public broadcast waiting for its firing time.
type Message struct {
	ID     string
	Owner  string // username of the sender
	Text   string
	FireAt time.Time
	Delay  time.Duration // FireAt minus the scheduling time; may be negative
}

// Scheduler tracks pending delayed messages and arbitrary keyed deadlines
// on one timer heap. Message IDs are 32-character hex strings, so they never
// collide with Defer keys that contain a ':'.
//
// Scheduler is not safe for concurrent use; it belongs to the hub loop.
type Scheduler struct {
	timers  *Timers
	pending map[string]*Message
	retired map[string]string // owner of recently cancelled or fired messages
	order   []string          // ring of retired IDs, oldest at next
	next    int
	limit   int
	newID   func() string
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		timers:  NewTimers(),
		pending: make(map[string]*Message),
		retired: make(map[string]string),
		limit:   RetiredLimit,
		newID:   NewID,
	}
}

// NewID returns a fresh opaque message ID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Schedule registers text from owner to fire at fireAt. A fireAt in the past
// makes the message due immediately.
func (s *Scheduler) Schedule(owner, text string, fireAt, now time.Time) *Message {
	msg := &Message{
		ID:     s.newID(),
		Owner:  owner,
		Text:   text,
		FireAt: fireAt,
		Delay:  fireAt.Sub(now),
	}
	s.pending[msg.ID] = msg
	s.timers.Set(msg.ID, fireAt)
	return msg
}

// Cancel removes a pending message. It reports false when id is unknown,
// already cancelled or already fired.
func (s *Scheduler) Cancel(id string) bool {
	_, ok := s.Take(id)
	return ok
}

// Take removes and returns the pending message for id so it can be
// delivered. The second return is false when the message was already
// cancelled or sent.
func (s *Scheduler) Take(id string) (*Message, bool) {
	msg, ok := s.pending[id]
	if !ok {
		return nil, false
	}
	delete(s.pending, id)
	s.timers.Stop(id)
	s.retire(id, msg.Owner)
	return msg, true
}

func (s *Scheduler) retire(id, owner string) {
	if s.limit <= 0 {
		return
	}
	if len(s.order) < s.limit {
		s.order = append(s.order, id)
	} else {
		delete(s.retired, s.order[s.next])
		s.order[s.next] = id
		s.next = (s.next + 1) % s.limit
	}
	s.retired[id] = owner
}

// Retired returns the owner of a message that was cancelled or already
// taken for delivery. Only the last RetiredLimit IDs are remembered.
func (s *Scheduler) Retired(id string) (owner string, ok bool) {
	owner, ok = s.retired[id]
	return owner, ok
}

// Pending returns the message for id without removing it.
func (s *Scheduler) Pending(id string) (*Message, bool) {
	msg, ok := s.pending[id]
	return msg, ok
}

// Len returns the number of pending messages.
func (s *Scheduler) Len() int { return len(s.pending) }

// Defer arms a keyed deadline that is not a message, e.g. an unban. key
// must contain a ':' to stay clear of message IDs.
func (s *Scheduler) Defer(key string, at time.Time) {
	s.timers.Set(key, at)
}

// Deferred reports whether key is armed.
func (s *Scheduler) Deferred(key string) bool {
	return s.timers.Armed(key)
}

// Next returns the earliest deadline across messages and deferred keys.
func (s *Scheduler) Next() (time.Time, bool) {
	return s.timers.Next()
}

// Due returns the keys whose deadline has passed, in deadline order. For
// messages the key is the message ID; the message stays pending until Take.
func (s *Scheduler) Due(now time.Time) []string {
	return s.timers.Due(now)
}
