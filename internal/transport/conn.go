// Package transport adapts accepted network connections into line-oriented
// chat sessions. Raw TCP streams are framed either by fixed-size reads or by
// newlines; WebSocket connections carry one message per text frame. Every
// session queues outbound lines and writes them from its own goroutine, so
// sending never blocks the caller.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/whisper/public-chat/internal/protocol"
)

// ErrClosed is returned by reads and writes on a session that has been
// closed locally or by the peer.
var ErrClosed = errors.New("transport: connection closed")

// Framing selects how inbound bytes on a stream are split into messages.
type Framing int

const (
	// FramingChunk treats each read of up to protocol.ChunkSize bytes as one
	// message. Longer messages are truncated and rapid sends may coalesce.
	FramingChunk Framing = iota
	// FramingLine splits the stream on '\n'.
	FramingLine
)

func (f Framing) String() string {
	if f == FramingLine {
		return "line"
	}
	return "chunk"
}

// ParseFraming maps "chunk" or "line" to a Framing.
func ParseFraming(s string) (Framing, error) {
	switch s {
	case "chunk", "":
		return FramingChunk, nil
	case "line":
		return FramingLine, nil
	}
	return FramingChunk, fmt.Errorf("transport: unknown framing %q", s)
}

// Conn is a message-oriented connection. Implementations must allow
// WriteMessage and ReadMessage to run concurrently.
type Conn interface {
	// ReadMessage blocks for the next inbound message, already decoded and
	// trimmed.
	ReadMessage() (string, error)
	// WriteMessage sends one outbound line.
	WriteMessage(line string) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// streamConn frames a raw TCP stream.
type streamConn struct {
	net.Conn
	framing Framing
	r       *bufio.Reader
	buf     []byte
	writeMu sync.Mutex
}

// NewStreamConn wraps c with the given framing.
func NewStreamConn(c net.Conn, framing Framing) Conn {
	sc := &streamConn{Conn: c, framing: framing}
	if framing == FramingLine {
		sc.r = bufio.NewReaderSize(c, protocol.MaxLineBytes)
	} else {
		sc.buf = make([]byte, protocol.ChunkSize)
	}
	return sc
}

func (c *streamConn) ReadMessage() (string, error) {
	if c.framing == FramingChunk {
		n, err := c.Conn.Read(c.buf)
		if n > 0 {
			return protocol.DecodeLine(c.buf[:n]), nil
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		return "", err
	}

	line, err := c.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		// Keep the first MaxLineBytes and discard the rest of the line.
		msg := protocol.DecodeLine(line)
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = c.r.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return msg, nil
	}
	if err != nil {
		if len(line) > 0 && errors.Is(err, io.EOF) {
			return protocol.DecodeLine(line), nil
		}
		return "", err
	}
	return protocol.DecodeLine(line), nil
}

// WriteMessage sends line followed by a newline so that clients can frame
// server output regardless of the inbound framing.
func (c *streamConn) WriteMessage(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	b := make([]byte, 0, len(line)+1)
	b = append(b, line...)
	b = append(b, '\n')
	_, err := c.Conn.Write(b)
	return err
}

// wsConn carries one message per WebSocket text frame.
type wsConn struct {
	net.Conn
	writeMu sync.Mutex
}

// NewWSConn wraps an upgraded server-side WebSocket connection.
func NewWSConn(c net.Conn) Conn {
	return &wsConn{Conn: c}
}

// ReadMessage returns the next data frame's payload. Control frames are
// answered by wsutil; a close frame surfaces as an error.
func (c *wsConn) ReadMessage() (string, error) {
	for {
		data, op, err := wsutil.ReadClientData(c.Conn)
		if err != nil {
			return "", err
		}
		if op != ws.OpText && op != ws.OpBinary {
			continue
		}
		if len(data) > protocol.MaxLineBytes {
			data = data[:protocol.MaxLineBytes]
		}
		return protocol.DecodeLine(data), nil
	}
}

func (c *wsConn) WriteMessage(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerText(c.Conn, []byte(line))
}

// Close sends a best-effort close frame before closing the socket.
func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = wsutil.WriteServerMessage(c.Conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.writeMu.Unlock()
	return c.Conn.Close()
}
