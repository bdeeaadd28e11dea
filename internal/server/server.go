// Package server binds the chat listeners and feeds accepted connections to
// the chat hub. It owns connection admission (per-IP rate limiting and a
// hard connection cap), the optional HTTP side listener serving WebSocket
// upgrades, health, the report audit view and metrics, and graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"

	"github.com/whisper/public-chat/internal/chat"
	"github.com/whisper/public-chat/internal/metrics"
	"github.com/whisper/public-chat/internal/transport"
)

// Config holds tunable parameters for the listeners.
type Config struct {
	ListenAddr      string            // TCP chat listener, e.g. "127.0.0.1:8000"
	HTTPAddr        string            // WebSocket/health/metrics listener; empty disables it
	Framing         transport.Framing // inbound framing on the TCP listener
	MaxConnections  int               // hard cap on concurrent sessions
	ReusePort       bool              // set SO_REUSEPORT on listeners where supported
	ShutdownTimeout time.Duration     // bound on graceful shutdown
	Session         transport.SessionConfig
}

// DefaultConfig returns a Config with the stock chat address and limits.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8000",
		Framing:         transport.FramingChunk,
		MaxConnections:  10000,
		ShutdownTimeout: 10 * time.Second,
		Session:         transport.DefaultSessionConfig(),
	}
}

// Admitter decides whether a new connection from identifier (the remote IP)
// may proceed. Both ratelimit.Limiter and ratelimit.LocalLimiter satisfy it.
type Admitter interface {
	Allow(ctx context.Context, identifier string) (bool, error)
}

// Server accepts chat connections and runs one hub session per connection.
type Server struct {
	config   Config
	hub      *chat.Hub
	admit    Admitter
	reports  ReportViewer
	sessions *transport.Manager

	ln         net.Listener
	httpLn     net.Listener
	httpServer *http.Server

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

// New creates a Server that hands sessions to hub.
func New(config Config, hub *chat.Hub) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:   config,
		hub:      hub,
		sessions: transport.NewManager(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetAdmitter installs per-IP admission control. It must be called before
// Serve.
func (s *Server) SetAdmitter(a Admitter) {
	s.admit = a
}

// Sessions returns the live session set.
func (s *Server) Sessions() *transport.Manager {
	return s.sessions
}

// Listen binds the TCP listener and, if configured, the HTTP listener. A
// bind failure is the only fatal server error.
func (s *Server) Listen() error {
	lc := listenConfig(s.config.ReusePort)

	ln, err := lc.Listen(context.Background(), "tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.ListenAddr, err)
	}
	s.ln = ln

	if s.config.HTTPAddr != "" {
		httpLn, err := lc.Listen(context.Background(), "tcp", s.config.HTTPAddr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("server: listen %s: %w", s.config.HTTPAddr, err)
		}
		s.httpLn = httpLn

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", s.handleUpgrade)
		mux.HandleFunc("/health", s.handleHealth)
		mux.HandleFunc("/reports", s.handleReports)
		mux.Handle("/metrics", metrics.Handler())
		s.httpServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	s.startedAt = time.Now()
	return nil
}

// Addr returns the bound chat address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// HTTPAddr returns the bound HTTP address, or nil when disabled.
func (s *Server) HTTPAddr() net.Addr {
	if s.httpLn == nil {
		return nil
	}
	return s.httpLn.Addr()
}

// Serve runs the accept loops until Shutdown. It calls Listen first if the
// listeners are not bound yet.
func (s *Server) Serve() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	if s.httpLn != nil {
		go func() {
			if err := s.httpServer.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("server: http error: %v", err)
			}
		}()
		log.Printf("server: http listening on %s (/ws, /health, /reports, /metrics)", s.httpLn.Addr())
	}

	log.Printf("server: chat listening on %s (framing=%s, max_conns=%d)",
		s.ln.Addr(), s.config.Framing, s.config.MaxConnections)

	return s.acceptLoop()
}

func (s *Server) acceptLoop() error {
	var backoff time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			log.Printf("server: accept error: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if !s.admitConn(conn.RemoteAddr()) {
			conn.Close()
			continue
		}
		s.start(transport.NewStreamConn(conn, s.config.Framing))
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(d*2, time.Second)
}

// admitConn applies the connection cap and the per-IP admitter. Admitter
// errors fail open.
func (s *Server) admitConn(addr net.Addr) bool {
	if s.config.MaxConnections > 0 && s.sessions.Count() >= s.config.MaxConnections {
		metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		log.Printf("server: rejecting %s: at capacity (%d)", addr, s.config.MaxConnections)
		return false
	}
	if s.admit == nil {
		return true
	}

	ip := remoteIP(addr)
	ctx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	ok, err := s.admit.Allow(ctx, ip)
	if err != nil {
		log.Printf("server: admission check for %s failed: %v", ip, err)
		return true
	}
	if !ok {
		metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
		log.Printf("server: rejecting %s: connection rate exceeded", ip)
	}
	return ok
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// start wraps conn in a session and runs it on the hub.
func (s *Server) start(conn transport.Conn) {
	if s.ctx.Err() != nil {
		conn.Close()
		return
	}
	sess := transport.NewSession(conn, s.config.Session)
	s.sessions.Add(sess)
	metrics.ConnectionsTotal.Inc()
	log.Printf("server: new connection session=%s remote=%s (total=%d)",
		sess.ID(), sess.RemoteAddr(), s.sessions.Count())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			<-sess.Done()
			s.sessions.Remove(sess.ID())
			metrics.ConnectionsTotal.Dec()
			log.Printf("server: connection closed session=%s age=%s (total=%d)",
				sess.ID(), time.Since(sess.CreatedAt()).Round(time.Millisecond), s.sessions.Count())
		}()

		if err := s.hub.Serve(s.ctx, sess); err != nil && !errors.Is(err, transport.ErrClosed) {
			log.Printf("server: session=%s: %v", sess.ID(), err)
		}
	}()
}

// handleUpgrade upgrades an HTTP request to a WebSocket chat session using
// the gobwas/ws zero-copy upgrader.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	addr, err := net.ResolveTCPAddr("tcp", r.RemoteAddr)
	if err != nil {
		http.Error(w, "bad remote address", http.StatusBadRequest)
		return
	}
	if !s.admitConn(addr) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("server: upgrade failed: %v", err)
		return
	}
	s.start(transport.NewWSConn(conn))
}

// Shutdown stops accepting, closes every session (flushing queued lines)
// and waits for session goroutines to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("server: shutting down...")
	s.cancel()

	if s.ln != nil {
		s.ln.Close()
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("server: http shutdown error: %v", err)
		}
	}

	s.sessions.CloseAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("server: stopped, all connections closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("server: shutdown: %w", ctx.Err())
	}
}
