// Package chat implements the public chat core: the user registry, the
// public history log and the Hub, which runs the per-session handshake and
// read loop and dispatches every command on a single owner goroutine.
package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/whisper/public-chat/internal/metrics"
	"github.com/whisper/public-chat/internal/moderation"
	"github.com/whisper/public-chat/internal/protocol"
	"github.com/whisper/public-chat/internal/ratelimit"
	"github.com/whisper/public-chat/internal/scheduler"
)

// Config holds the static chat parameters.
type Config struct {
	Name                 string         // chat name shown in the welcome and status lines
	LastMessages         int            // history entries replayed on login
	MaxMessagesPerPeriod int            // public messages per period before the limit notice
	Period               time.Duration  // rate window length
	BanThreshold         int            // reports that trigger a ban
	BanPeriod            time.Duration  // ban length
	EnforceBan           bool           // drop lines from banned users
	InboxSize            int            // buffered events between sessions and the hub
	Location             *time.Location // zone for delay command dates
}

// DefaultConfig returns the stock chat parameters.
func DefaultConfig() Config {
	return Config{
		Name:                 "Public chat",
		LastMessages:         20,
		MaxMessagesPerPeriod: 20,
		Period:               time.Hour,
		BanThreshold:         moderation.DefaultThreshold,
		BanPeriod:            4 * time.Hour,
		InboxSize:            256,
		Location:             time.Local,
	}
}

// Peer is a connected session as seen by the hub.
type Peer interface {
	Client
	// ReadLine blocks for the next inbound message.
	ReadLine() (string, error)
	// Close flushes pending sends and releases the transport.
	Close() error
}

// Feed receives chat events for external observers.
type Feed interface {
	PublishChatEvent(ev Event) error
}

// ReportRecorder persists moderation reports.
type ReportRecorder interface {
	RecordReport(ctx context.Context, reporter, target string, count int, banned bool) error
}

// member is the hub-side state of one session. Only the hub goroutine
// reads or writes username.
type member struct {
	client   Client
	username string
}

type eventKind int

const (
	evJoin eventKind = iota
	evLine
	evLeave
)

type event struct {
	kind   eventKind
	member *member
	line   string
	done   chan struct{} // closed once a leave has been processed
}

// Hub owns every piece of shared chat state. Sessions feed it through an
// inbox channel and Run processes events one at a time, which also drives
// delayed messages and unbans off a single timer.
type Hub struct {
	cfg       Config
	registry  *Registry
	history   *History
	limiter   *ratelimit.Window
	ledger    *moderation.Ledger
	scheduler *scheduler.Scheduler
	feed      Feed
	reports   ReportRecorder

	inbox chan event
	done  chan struct{}
	now   func() time.Time
}

// NewHub creates a Hub with the given configuration. Call Run to start it.
func NewHub(cfg Config) *Hub {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Hub{
		cfg:       cfg,
		registry:  NewRegistry(),
		history:   NewHistory(),
		limiter:   ratelimit.NewWindow(cfg.MaxMessagesPerPeriod, cfg.Period),
		ledger:    moderation.NewLedger(cfg.BanThreshold, cfg.BanPeriod),
		scheduler: scheduler.New(),
		inbox:     make(chan event, cfg.InboxSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// SetFeed registers a publisher for chat events. It must be called before Run.
func (h *Hub) SetFeed(f Feed) {
	h.feed = f
}

// SetReportRecorder registers a store for moderation reports. It must be
// called before Run.
func (h *Hub) SetReportRecorder(r ReportRecorder) {
	h.reports = r
}

// Registry exposes the user registry for read-only callers such as the
// health endpoint.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// History exposes the public history log for read-only callers.
func (h *Hub) History() *History {
	return h.history
}

// Run processes session events and fires due timers until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		h.arm(timer)

		select {
		case <-ctx.Done():
			log.Printf("chat: hub stopped (users=%d, pending_delayed=%d)", h.registry.Count(), h.scheduler.Len())
			return
		case ev := <-h.inbox:
			start := time.Now()
			h.handle(ev)
			metrics.CommandLatency.Observe(time.Since(start).Seconds())
		case <-timer.C:
			h.fireDue(h.now())
		}
	}
}

// arm points timer at the earliest scheduler deadline.
func (h *Hub) arm(timer *time.Timer) {
	next, ok := h.scheduler.Next()
	if !ok {
		timer.Stop()
		return
	}
	timer.Reset(max(next.Sub(h.now()), 0))
}

// Serve runs one session to completion: handshake, history replay, then the
// read loop until the peer sends "exit", the connection fails, or ctx is
// cancelled. The peer is always closed on return.
func (h *Hub) Serve(ctx context.Context, p Peer) error {
	m := &member{client: p}

	line, err := p.ReadLine()
	if err != nil {
		p.Close()
		return fmt.Errorf("chat: handshake session=%s: %w", p.ID(), err)
	}
	if !h.submit(ctx, event{kind: evJoin, member: m, line: line}) {
		p.Close()
		return ErrHubStopped
	}

	defer h.closeSession(m, p)

	for {
		line, err := p.ReadLine()
		if err != nil {
			return fmt.Errorf("chat: read session=%s: %w", p.ID(), err)
		}
		if line == "" {
			continue
		}
		if line == protocol.LineExit {
			return nil
		}
		if !h.submit(ctx, event{kind: evLine, member: m, line: line}) {
			return ErrHubStopped
		}
	}
}

// closeSession unregisters the member, then sends the exit notice and
// releases the transport.
func (h *Hub) closeSession(m *member, p Peer) {
	done := make(chan struct{})
	if h.submit(context.Background(), event{kind: evLeave, member: m, done: done}) {
		select {
		case <-done:
		case <-h.done:
		}
	}
	p.Send(NoticeExit)
	if err := p.Close(); err != nil {
		log.Printf("chat: close session=%s: %v", p.ID(), err)
	}
}

// submit hands ev to the hub loop. It returns false if the hub has stopped
// or ctx is cancelled first.
func (h *Hub) submit(ctx context.Context, ev event) bool {
	select {
	case h.inbox <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

func (h *Hub) handle(ev event) {
	switch ev.kind {
	case evJoin:
		h.join(ev.member, ev.line)
	case evLine:
		if err := h.dispatch(ev.member, ev.line); err != nil {
			log.Printf("chat: session=%s user=%q: %v", ev.member.client.ID(), ev.member.username, err)
		}
	case evLeave:
		h.leave(ev.member)
		close(ev.done)
	}
}

// join applies the handshake line, registers the session and sends the
// welcome banner and history replay. A malformed handshake is logged and the
// session continues with whatever name could be extracted.
func (h *Hub) join(m *member, line string) {
	name, ok := protocol.ParseHandshake(line)
	if !ok {
		log.Printf("chat: session=%s handshake %q is not \"username - <name>\", using %q", m.client.ID(), line, name)
	}
	m.username = name

	if prev := h.registry.Register(name, m.client); prev != nil {
		log.Printf("chat: user %q re-registered by session=%s (was session=%s)", name, m.client.ID(), prev.ID())
	}
	metrics.UsersOnline.Set(float64(h.registry.Count()))
	log.Printf("chat: user %q joined session=%s (online=%d)", name, m.client.ID(), h.registry.Count())

	m.client.Send(welcomeNotice(h.cfg.Name))
	h.sendHistory(m.client)
}

func (h *Hub) sendHistory(c Client) {
	entries := h.history.Last(h.cfg.LastMessages)
	if len(entries) == 0 {
		c.Send(NoticeHistoryEmpty)
		return
	}
	c.Send(historyHeader(h.cfg.LastMessages))
	for _, e := range entries {
		c.Send(e.String())
	}
}

func (h *Hub) leave(m *member) {
	if h.registry.UnregisterIf(m.username, m.client) {
		log.Printf("chat: user %q left session=%s (online=%d)", m.username, m.client.ID(), h.registry.Count())
	}
	metrics.UsersOnline.Set(float64(h.registry.Count()))
}

// fireDue delivers every delayed message and unban whose time has come.
func (h *Hub) fireDue(now time.Time) {
	for _, key := range h.scheduler.Due(now) {
		if target, ok := unbanTarget(key); ok {
			h.unban(target)
			continue
		}
		if err := h.fire(key); err != nil {
			log.Printf("chat: fire delayed id=%s: %v", key, err)
		}
	}
}
