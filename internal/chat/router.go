package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/whisper/public-chat/internal/metrics"
	"github.com/whisper/public-chat/internal/protocol"
)

const (
	unbanKeyPrefix = "unban:"
	recordTimeout  = 3 * time.Second
)

func unbanKey(username string) string { return unbanKeyPrefix + username }

func unbanTarget(key string) (string, bool) {
	return strings.CutPrefix(key, unbanKeyPrefix)
}

// dispatch classifies one line from m and runs the matching handler. The
// returned error describes the outcome for logging; the sender has already
// been notified.
func (h *Hub) dispatch(m *member, line string) error {
	if h.cfg.EnforceBan && h.ledger.Banned(m.username) {
		return ErrBanned
	}

	cmd := protocol.Parse(line, h.cfg.Location)
	if cmd.Err != nil {
		m.client.Send(cmd.Err.Notice)
		return cmd.Err
	}

	switch cmd.Kind {
	case protocol.KindUsername:
		h.rename(m, cmd.Name)
		return nil
	case protocol.KindStatus:
		m.client.Send(statusNotice(h.cfg.Name, h.registry.Usernames()))
		return nil
	case protocol.KindPrivate:
		return h.private(m, cmd.Name, cmd.Text)
	case protocol.KindReport:
		return h.report(m, cmd.Name)
	case protocol.KindDelay:
		h.delay(m, cmd.Text, cmd.FireAt)
		return nil
	case protocol.KindCancel:
		return h.cancel(m, cmd.ID)
	case protocol.KindExit:
		// Serve intercepts exit before it reaches the hub.
		return nil
	default:
		h.public(m.username, m.client, cmd.Text)
		metrics.MessagesTotal.WithLabelValues("public").Inc()
		return nil
	}
}

// public records text from username in the history and broadcasts it to
// everyone except sender, which may be nil when the author is offline. The
// rate window is advisory: going over it only warns the sender.
func (h *Hub) public(username string, sender Client, text string) {
	d := h.limiter.Hit(username, h.now())
	if d.Reset {
		log.Printf("chat: rate window for %q restarted", username)
	}
	if d.Limited {
		metrics.RateLimitedTotal.Inc()
		log.Printf("chat: user %q over limit (%d/%d)", username, d.Count, h.cfg.MaxMessagesPerPeriod)
		if sender != nil {
			sender.Send(rateLimitNotice(h.cfg.MaxMessagesPerPeriod))
		}
	}

	entry := h.history.Append(username, text, h.now())
	h.registry.Broadcast(entry.String(), sender)
	h.publish(Event{Type: EventPublic, From: username, Text: text})
}

func (h *Hub) private(m *member, to, text string) error {
	recipient, ok := h.registry.Lookup(to)
	if !ok {
		m.client.Send(recipientNotFound(to))
		return fmt.Errorf("pm to %q: %w", to, ErrNotFound)
	}
	recipient.Send(privateNotice(m.username, text))
	metrics.MessagesTotal.WithLabelValues("private").Inc()
	return nil
}

// report files one report from m against target and starts a ban when the
// threshold is reached. At most one unban is pending per user.
func (h *Hub) report(m *member, target string) error {
	c, ok := h.registry.Lookup(target)
	if !ok {
		m.client.Send(userNotFound(target))
		return fmt.Errorf("report %q: %w", target, ErrNotFound)
	}

	out := h.ledger.Report(target, h.now())
	metrics.ReportsTotal.Inc()
	c.Send(reportNotice(m.username))
	log.Printf("chat: %q reported %q (count=%d)", m.username, target, out.Count)
	h.publish(Event{Type: EventReport, From: m.username, To: target, Count: out.Count})

	if out.Banned {
		c.Send(NoticeBanned)
		if !out.UnbanAt.IsZero() {
			h.scheduler.Defer(unbanKey(target), out.UnbanAt)
			metrics.BansTotal.Inc()
			log.Printf("chat: user %q banned until %s", target, out.UnbanAt.Format(time.RFC3339))
			h.publish(Event{Type: EventBan, From: m.username, To: target, Count: out.Count})
		}
	}

	h.recordReport(m.username, target, out.Count, out.Banned)
	return nil
}

func (h *Hub) recordReport(reporter, target string, count int, banned bool) {
	if h.reports == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := h.reports.RecordReport(ctx, reporter, target, count, banned); err != nil {
			log.Printf("chat: record report %q -> %q: %v", reporter, target, err)
		}
	}()
}

// unban lifts target's ban and tells them if they are still online.
func (h *Hub) unban(target string) {
	if !h.ledger.Unban(target) {
		return
	}
	log.Printf("chat: user %q unbanned", target)
	if c, ok := h.registry.Lookup(target); ok {
		c.Send(unbannedNotice(target))
	}
	h.publish(Event{Type: EventUnban, To: target})
}

func (h *Hub) delay(m *member, text string, fireAt time.Time) {
	msg := h.scheduler.Schedule(m.username, text, fireAt, h.now())
	metrics.DelayedPending.Set(float64(h.scheduler.Len()))
	m.client.Send(scheduledNotice(msg.Text, msg.ID, msg.Delay.Seconds()))
	log.Printf("chat: user %q scheduled id=%s at %s", m.username, msg.ID, protocol.FormatFireTime(fireAt))
}

func (h *Hub) cancel(m *member, id string) error {
	if !h.scheduler.Cancel(id) {
		m.client.Send(cancelNotFound(id))
		return fmt.Errorf("cancel %s: %w", id, ErrNotFound)
	}
	metrics.DelayedPending.Set(float64(h.scheduler.Len()))
	m.client.Send(cancelledNotice(id))
	log.Printf("chat: user %q cancelled id=%s", m.username, id)
	return nil
}

// fire delivers the delayed message id through the public path. The owner
// is resolved by username at this point; when they are offline the message
// reaches everyone and no confirmation is sent.
func (h *Hub) fire(id string) error {
	msg, ok := h.scheduler.Take(id)
	if !ok {
		if owner, known := h.scheduler.Retired(id); known {
			if c, online := h.registry.Lookup(owner); online {
				c.Send(delayedGoneNotice(id))
			}
		}
		return fmt.Errorf("fire %s: %w", id, ErrNotFound)
	}
	metrics.DelayedPending.Set(float64(h.scheduler.Len()))

	owner, _ := h.registry.Lookup(msg.Owner)
	h.public(msg.Owner, owner, msg.Text)
	metrics.MessagesTotal.WithLabelValues("delayed").Inc()
	if owner != nil {
		owner.Send(delayedSentNotice(id))
	}
	log.Printf("chat: delayed id=%s from %q sent", id, msg.Owner)
	return nil
}

// rename moves m to a new registry key.
func (h *Hub) rename(m *member, name string) {
	if name == m.username {
		return
	}
	old := m.username
	h.registry.UnregisterIf(old, m.client)
	if prev := h.registry.Register(name, m.client); prev != nil {
		log.Printf("chat: user %q taken over by session=%s (was session=%s)", name, m.client.ID(), prev.ID())
	}
	m.username = name
	metrics.UsersOnline.Set(float64(h.registry.Count()))
	log.Printf("chat: session=%s renamed %q -> %q", m.client.ID(), old, name)
}

func (h *Hub) publish(ev Event) {
	if h.feed == nil {
		return
	}
	ev.Ts = h.now().UnixMilli()
	if err := h.feed.PublishChatEvent(ev); err != nil {
		log.Printf("chat: publish %s event: %v", ev.Type, err)
	}
}
