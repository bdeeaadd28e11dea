package transport

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionConfig holds per-session tunables.
type SessionConfig struct {
	QueueSize    int           // outbound lines buffered before the session is dropped
	WriteTimeout time.Duration // deadline for a single outbound write
	FlushTimeout time.Duration // how long Close waits for queued lines to drain
}

// DefaultSessionConfig returns a SessionConfig with sensible defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		QueueSize:    256,
		WriteTimeout: 10 * time.Second,
		FlushTimeout: 5 * time.Second,
	}
}

// Session is one connected client. ReadLine is called from a single reader
// goroutine; Send may be called from any goroutine and never blocks.
type Session struct {
	id        string
	conn      Conn
	cfg       SessionConfig
	createdAt time.Time

	out     chan string
	closing chan struct{} // closed by Close: writer drains out, then exits
	aborted chan struct{} // closed on overflow or write failure: writer exits at once
	done    chan struct{} // closed when the writer has released conn

	closeOnce sync.Once
	abortOnce sync.Once
}

// NewSession wraps conn and starts its writer goroutine.
func NewSession(conn Conn, cfg SessionConfig) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultSessionConfig().QueueSize
	}
	s := &Session{
		id:        uuid.New().String(),
		conn:      conn,
		cfg:       cfg,
		createdAt: time.Now(),
		out:       make(chan string, cfg.QueueSize),
		closing:   make(chan struct{}),
		aborted:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// CreatedAt returns when the session was accepted.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// ReadLine blocks for the next inbound message. Errors wrap ErrClosed.
func (s *Session) ReadLine() (string, error) {
	line, err := s.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return line, nil
}

// Send queues line for delivery. Lines sent after Close are dropped. A
// client that falls QueueSize lines behind is disconnected.
func (s *Session) Send(line string) {
	select {
	case <-s.closing:
		return
	case <-s.aborted:
		return
	default:
	}

	select {
	case s.out <- line:
	default:
		log.Printf("transport: session=%s send queue full, dropping connection", s.id)
		s.abort()
	}
}

// Close flushes queued lines and releases the connection. It is safe to call
// more than once and from any goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closing) })

	flush := s.cfg.FlushTimeout
	if flush <= 0 {
		flush = DefaultSessionConfig().FlushTimeout
	}
	select {
	case <-s.done:
	case <-time.After(flush):
		s.abort()
		_ = s.conn.Close()
		<-s.done
	}
	return nil
}

// Done is closed once the connection has been released.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) abort() {
	s.abortOnce.Do(func() { close(s.aborted) })
}

func (s *Session) writeLoop() {
	defer close(s.done)
	defer s.conn.Close()

	for {
		select {
		case <-s.aborted:
			return
		case line := <-s.out:
			if !s.write(line) {
				return
			}
		case <-s.closing:
			for {
				select {
				case line := <-s.out:
					if !s.write(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(line string) bool {
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if err := s.conn.WriteMessage(line); err != nil {
		log.Printf("transport: session=%s write failed: %v", s.id, err)
		s.abort()
		return false
	}
	return true
}
