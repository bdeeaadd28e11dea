package transport

import "sync"

// Manager is a goroutine-safe set of live sessions keyed by session ID. The
// server uses it to enforce connection caps and to close everything on
// shutdown.
type Manager struct {
	mu   sync.RWMutex
	byID map[string]*Session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{byID: make(map[string]*Session)}
}

// Add registers s.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	m.byID[s.ID()] = s
	m.mu.Unlock()
}

// Remove drops the session with id. It returns false if it was already gone.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	_, ok := m.byID[id]
	delete(m.byID, id)
	m.mu.Unlock()
	return ok
}

// Get returns the session for id, or nil if not found.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s := m.byID[id]
	m.mu.RUnlock()
	return s
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	n := len(m.byID)
	m.mu.RUnlock()
	return n
}

// All returns a snapshot of all live sessions.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	m.mu.RUnlock()
	return out
}

// CloseAll closes every live session concurrently and waits for them to
// release their connections.
func (m *Manager) CloseAll() {
	var wg sync.WaitGroup
	for _, s := range m.All() {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
}
