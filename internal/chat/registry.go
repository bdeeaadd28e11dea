package chat

import (
	"sort"
	"sync"
)

// Client is the send side of a connected session.
type Client interface {
	// ID uniquely identifies the underlying connection.
	ID() string
	// Send queues one line for delivery. It must not block.
	Send(line string)
}

// Registry maps usernames to the sessions currently holding them. It is the
// single source of truth for who is online. Registering a taken name
// replaces the previous holder (last writer wins).
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Client
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Client)}
}

// Register maps username to c unconditionally. It returns the client that
// previously held the name, or nil.
func (r *Registry) Register(username string, c Client) Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.byName[username]
	r.byName[username] = c
	if prev != nil && prev.ID() == c.ID() {
		return nil
	}
	return prev
}

// Lookup returns the client registered under username.
func (r *Registry) Lookup(username string) (Client, bool) {
	r.mu.RLock()
	c, ok := r.byName[username]
	r.mu.RUnlock()
	return c, ok
}

// Unregister removes username regardless of which client holds it.
func (r *Registry) Unregister(username string) {
	r.mu.Lock()
	delete(r.byName, username)
	r.mu.Unlock()
}

// UnregisterIf removes username only while it still maps to c, so a session
// that lost its name to a newer login does not evict the new holder.
func (r *Registry) UnregisterIf(username string, c Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byName[username]
	if !ok || cur.ID() != c.ID() {
		return false
	}
	delete(r.byName, username)
	return true
}

// Broadcast sends line to every registered client except exclude (which may
// be nil) and returns the number of recipients.
func (r *Registry) Broadcast(line string, exclude Client) int {
	r.mu.RLock()
	targets := make([]Client, 0, len(r.byName))
	for _, c := range r.byName {
		if exclude != nil && c.ID() == exclude.ID() {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Send(line)
	}
	return len(targets)
}

// Count returns the number of registered usernames.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byName)
	r.mu.RUnlock()
	return n
}

// Usernames returns the registered usernames in sorted order.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
