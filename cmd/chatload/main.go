// Command chatload is a load generator for the public chat server. It opens
// many line-framed TCP clients, completes the username handshake for each,
// then has every client broadcast timestamped messages while all others
// measure delivery latency.
//
// Usage:
//
//	chatload -addr 127.0.0.1:8000 -clients 100 -messages 10
//
// Run the server with FRAMING=line so that rapid sends are not coalesced,
// and raise MAX_MESSAGES_PER_PERIOD if the rate-limit notices are unwanted.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/whisper/public-chat/internal/chat"
	"github.com/whisper/public-chat/internal/loadstats"
)

const pingPrefix = "ping"

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "chat server TCP address")
	clients := flag.Int("clients", 50, "number of concurrent clients")
	messages := flag.Int("messages", 5, "broadcasts sent by each client")
	interval := flag.Duration("interval", 200*time.Millisecond, "delay between broadcasts from one client")
	rampUp := flag.Duration("ramp", 2*time.Second, "ramp-up duration")
	drain := flag.Duration("drain", 2*time.Second, "wait after the last send for deliveries")
	flag.Parse()

	fmt.Printf("Chat load test: %d clients x %d messages to %s (interval=%s, ramp=%s)\n",
		*clients, *messages, *addr, *interval, *rampUp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := loadstats.NewCollector()

	// Connect phase.
	conns := make([]*loadClient, 0, *clients)
	var mu sync.Mutex
	var wg sync.WaitGroup

	step := *rampUp / time.Duration(max(*clients, 1))
	for i := 0; i < *clients && ctx.Err() == nil; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := connect(ctx, *addr, fmt.Sprintf("load-%d", i), collector)
			if err != nil {
				collector.AddError()
				fmt.Fprintf(os.Stderr, "  client %d: %v\n", i, err)
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}(i)
		time.Sleep(step)
	}
	wg.Wait()
	fmt.Printf("  connected: %d/%d\n", len(conns), *clients)

	// Send phase.
	for _, c := range conns {
		wg.Add(1)
		go func(c *loadClient) {
			defer wg.Done()
			for seq := 0; seq < *messages && ctx.Err() == nil; seq++ {
				if err := c.send(fmt.Sprintf("%s %d %d", pingPrefix, seq, time.Now().UnixNano())); err != nil {
					collector.AddError()
					return
				}
				collector.AddSent()
				time.Sleep(*interval)
			}
		}(c)
	}
	wg.Wait()

	select {
	case <-time.After(*drain):
	case <-ctx.Done():
	}

	for _, c := range conns {
		c.close()
	}
	collector.Report(os.Stdout, max(len(conns)-1, 0))
}

// loadClient is one simulated chat user.
type loadClient struct {
	name string
	conn net.Conn
	mu   sync.Mutex
}

// connect dials addr, performs the handshake and starts a reader that
// records broadcast latency for every ping line it receives.
func connect(ctx context.Context, addr, name string, collector *loadstats.Collector) (*loadClient, error) {
	start := time.Now()
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := d.DialContext(dctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	c := &loadClient{name: name, conn: conn}
	if err := c.send("username - " + name); err != nil {
		conn.Close()
		return nil, err
	}

	r := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("handshake: %w", err)
		}
		line = strings.TrimSuffix(line, "\n")
		if line == chat.NoticeHistoryEmpty || strings.HasPrefix(line, "The last ") {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})
	collector.AddConnect(time.Since(start))

	go c.readLoop(r, collector)
	return c, nil
}

func (c *loadClient) readLoop(r *bufio.Reader, collector *loadstats.Collector) {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		if sent, ok := parsePing(strings.TrimSuffix(line, "\n")); ok {
			collector.AddMsgLatency(time.Since(sent))
		}
	}
}

// parsePing extracts the send time from "<user>: ping <seq> <unixnano>".
func parsePing(line string) (time.Time, bool) {
	_, text, ok := strings.Cut(line, ": ")
	if !ok {
		return time.Time{}, false
	}
	fields := strings.Fields(text)
	if len(fields) != 3 || fields[0] != pingPrefix {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

func (c *loadClient) send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

func (c *loadClient) close() {
	_ = c.send("exit")
	c.conn.Close()
}
