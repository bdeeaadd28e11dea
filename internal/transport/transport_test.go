package transport

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"

	"github.com/whisper/public-chat/internal/protocol"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func pipe(t *testing.T) (server, client net.Conn) {
	t.Helper()
	server, client = net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return server, client
}

func writeAsync(c net.Conn, data string) <-chan error {
	errc := make(chan error, 1)
	go func() {
		_, err := c.Write([]byte(data))
		errc <- err
	}()
	return errc
}

// ---------------------------------------------------------------------------
// Test: Stream framing
// ---------------------------------------------------------------------------

func TestChunkFraming_Truncates(t *testing.T) {
	server, client := pipe(t)
	conn := NewStreamConn(server, FramingChunk)

	writeAsync(client, strings.Repeat("a", 300))

	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if len(msg) != protocol.ChunkSize {
		t.Errorf("expected %d bytes, got %d", protocol.ChunkSize, len(msg))
	}
}

func TestChunkFraming_Trims(t *testing.T) {
	server, client := pipe(t)
	conn := NewStreamConn(server, FramingChunk)

	writeAsync(client, "  username - alice \r\n")

	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg != "username - alice" {
		t.Errorf("expected %q, got %q", "username - alice", msg)
	}
}

func TestLineFraming(t *testing.T) {
	server, client := pipe(t)
	conn := NewStreamConn(server, FramingLine)

	writeAsync(client, "one\ntwo  \n")

	for _, want := range []string{"one", "two"} {
		msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if msg != want {
			t.Errorf("expected %q, got %q", want, msg)
		}
	}
}

func TestLineFraming_LongLineTruncated(t *testing.T) {
	server, client := pipe(t)
	conn := NewStreamConn(server, FramingLine)

	writeAsync(client, strings.Repeat("x", protocol.MaxLineBytes+100)+"\nnext\n")

	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if len(msg) != protocol.MaxLineBytes {
		t.Errorf("expected %d bytes, got %d", protocol.MaxLineBytes, len(msg))
	}

	msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg != "next" {
		t.Errorf("expected %q after the long line, got %q", "next", msg)
	}
}

func TestParseFraming(t *testing.T) {
	tests := []struct {
		in      string
		want    Framing
		wantErr bool
	}{
		{"", FramingChunk, false},
		{"chunk", FramingChunk, false},
		{"line", FramingLine, false},
		{"frames", FramingChunk, true},
	}
	for _, tt := range tests {
		got, err := ParseFraming(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFraming(%q) = (%s, %v)", tt.in, got, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Test: Session send queue and close
// ---------------------------------------------------------------------------

func TestSession_CloseFlushesQueuedLines(t *testing.T) {
	server, client := pipe(t)
	s := NewSession(NewStreamConn(server, FramingChunk), DefaultSessionConfig())

	s.Send("first")
	s.Send("second")
	s.Send("exit")

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	r := bufio.NewReader(client)
	for _, want := range []string{"first\n", "second\n", "exit\n"} {
		got, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after flushing")
	}
	if _, err := r.ReadString('\n'); err == nil {
		t.Error("expected EOF after Close")
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	server, _ := pipe(t)
	s := NewSession(NewStreamConn(server, FramingChunk), DefaultSessionConfig())

	s.Close()
	s.Close()
	s.Send("dropped")

	select {
	case <-s.Done():
	default:
		t.Error("expected session to be done after Close")
	}
}

func TestSession_ReadAfterPeerClose(t *testing.T) {
	server, client := pipe(t)
	s := NewSession(NewStreamConn(server, FramingChunk), DefaultSessionConfig())
	defer s.Close()

	client.Close()

	_, err := s.ReadLine()
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestSession_QueueOverflowDisconnects(t *testing.T) {
	server, _ := pipe(t)
	cfg := DefaultSessionConfig()
	cfg.QueueSize = 1
	cfg.WriteTimeout = 50 * time.Millisecond
	s := NewSession(NewStreamConn(server, FramingChunk), cfg)

	// Nobody reads the client side, so the writer stalls on the first line.
	for i := 0; i < 5; i++ {
		s.Send("line")
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow client was not disconnected")
	}
}

func TestSession_UniqueIDs(t *testing.T) {
	a, _ := pipe(t)
	b, _ := pipe(t)
	s1 := NewSession(NewStreamConn(a, FramingChunk), DefaultSessionConfig())
	s2 := NewSession(NewStreamConn(b, FramingChunk), DefaultSessionConfig())
	defer s1.Close()
	defer s2.Close()

	if s1.ID() == s2.ID() {
		t.Errorf("expected distinct session IDs, both %q", s1.ID())
	}
}

func TestSession_CreatedAt(t *testing.T) {
	before := time.Now()
	server, _ := pipe(t)
	s := NewSession(NewStreamConn(server, FramingChunk), DefaultSessionConfig())
	defer s.Close()

	if at := s.CreatedAt(); at.Before(before) || at.After(time.Now()) {
		t.Errorf("CreatedAt %v outside [%v, now]", at, before)
	}
}

// ---------------------------------------------------------------------------
// Test: WebSocket framing
// ---------------------------------------------------------------------------

func TestWSConn_TextFrames(t *testing.T) {
	server, client := pipe(t)
	conn := NewWSConn(server)

	go wsutil.WriteClientText(client, []byte("  pm bob hi  "))

	msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if msg != "pm bob hi" {
		t.Errorf("expected %q, got %q", "pm bob hi", msg)
	}

	go conn.WriteMessage("Private message from alice: hi")

	data, err := wsutil.ReadServerText(client)
	if err != nil {
		t.Fatalf("ReadServerText: %v", err)
	}
	if string(data) != "Private message from alice: hi" {
		t.Errorf("unexpected frame payload %q", data)
	}
}

// ---------------------------------------------------------------------------
// Test: Manager
// ---------------------------------------------------------------------------

func TestManager(t *testing.T) {
	m := NewManager()
	a, _ := pipe(t)
	b, _ := pipe(t)
	s1 := NewSession(NewStreamConn(a, FramingChunk), DefaultSessionConfig())
	s2 := NewSession(NewStreamConn(b, FramingChunk), DefaultSessionConfig())

	m.Add(s1)
	m.Add(s2)
	if m.Count() != 2 {
		t.Fatalf("expected 2 sessions, got %d", m.Count())
	}
	if m.Get(s1.ID()) != s1 {
		t.Error("Get returned the wrong session")
	}
	if !m.Remove(s1.ID()) || m.Remove(s1.ID()) {
		t.Error("Remove should succeed once")
	}

	m.CloseAll()
	select {
	case <-s2.Done():
	default:
		t.Error("CloseAll left a session open")
	}
	s1.Close()
}
