package chat

import (
	"fmt"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// fakeClient records every line sent to it.
type fakeClient struct {
	id string

	mu    sync.Mutex
	lines []string
}

func newFakeClient(id string) *fakeClient {
	return &fakeClient{id: id}
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *fakeClient) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *fakeClient) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return ""
	}
	return c.lines[len(c.lines)-1]
}

func (c *fakeClient) Reset() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

func (c *fakeClient) Received(line string) bool {
	for _, l := range c.Lines() {
		if l == line {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Test: Register / Lookup
// ---------------------------------------------------------------------------

func TestRegistry_LastWriterWins(t *testing.T) {
	r := NewRegistry()
	first := newFakeClient("s1")
	second := newFakeClient("s2")

	if prev := r.Register("alice", first); prev != nil {
		t.Fatalf("expected no previous holder, got %s", prev.ID())
	}
	prev := r.Register("alice", second)
	if prev == nil || prev.ID() != "s1" {
		t.Fatalf("expected previous holder s1, got %v", prev)
	}

	c, ok := r.Lookup("alice")
	if !ok {
		t.Fatal("expected alice to be registered")
	}
	if c.ID() != "s2" {
		t.Errorf("expected lookup to return s2, got %s", c.ID())
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 user, got %d", r.Count())
	}
}

func TestRegistry_RegisterSameClientTwice(t *testing.T) {
	r := NewRegistry()
	c := newFakeClient("s1")

	r.Register("alice", c)
	if prev := r.Register("alice", c); prev != nil {
		t.Errorf("re-registering the same client should not report a previous holder")
	}
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("nobody"); ok {
		t.Error("expected lookup of unknown user to fail")
	}
}

// ---------------------------------------------------------------------------
// Test: Unregister
// ---------------------------------------------------------------------------

func TestRegistry_UnregisterIf(t *testing.T) {
	r := NewRegistry()
	old := newFakeClient("s1")
	cur := newFakeClient("s2")

	r.Register("alice", old)
	r.Register("alice", cur)

	if r.UnregisterIf("alice", old) {
		t.Error("stale session must not evict the current holder")
	}
	if c, _ := r.Lookup("alice"); c == nil || c.ID() != "s2" {
		t.Fatalf("expected s2 to still hold alice")
	}

	if !r.UnregisterIf("alice", cur) {
		t.Error("expected current holder to be removed")
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", newFakeClient("s1"))
	r.Unregister("alice")
	r.Unregister("alice")

	if _, ok := r.Lookup("alice"); ok {
		t.Error("expected alice to be gone")
	}
}

// ---------------------------------------------------------------------------
// Test: Broadcast
// ---------------------------------------------------------------------------

func TestRegistry_BroadcastExcludesSender(t *testing.T) {
	r := NewRegistry()
	alice := newFakeClient("a")
	bob := newFakeClient("b")
	carol := newFakeClient("c")
	r.Register("alice", alice)
	r.Register("bob", bob)
	r.Register("carol", carol)

	n := r.Broadcast("alice: hi", alice)
	if n != 2 {
		t.Errorf("expected 2 recipients, got %d", n)
	}
	if len(alice.Lines()) != 0 {
		t.Errorf("sender should not receive its own broadcast, got %v", alice.Lines())
	}
	for _, c := range []*fakeClient{bob, carol} {
		lines := c.Lines()
		if len(lines) != 1 || lines[0] != "alice: hi" {
			t.Errorf("client %s: expected exactly one %q, got %v", c.ID(), "alice: hi", lines)
		}
	}
}

func TestRegistry_BroadcastNilExclude(t *testing.T) {
	r := NewRegistry()
	a := newFakeClient("a")
	r.Register("alice", a)

	if n := r.Broadcast("system", nil); n != 1 {
		t.Errorf("expected 1 recipient, got %d", n)
	}
	if a.Last() != "system" {
		t.Errorf("expected %q, got %q", "system", a.Last())
	}
}

func TestRegistry_UsernamesSorted(t *testing.T) {
	r := NewRegistry()
	for i, name := range []string{"carol", "alice", "bob"} {
		r.Register(name, newFakeClient(fmt.Sprintf("s%d", i)))
	}

	got := r.Usernames()
	want := []string{"alice", "bob", "carol"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("user-%d", n%10)
			c := newFakeClient(fmt.Sprintf("s%d", n))
			r.Register(name, c)
			r.Lookup(name)
			r.Broadcast("x", c)
			r.Usernames()
			r.UnregisterIf(name, c)
		}(i)
	}
	wg.Wait()
}
