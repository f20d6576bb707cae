package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
)

const (
	// handshakeAttempts is how many times Connect retries the websocket
	// handshake before giving up.
	handshakeAttempts = 5

	// handshakeBackoff is the fixed delay between handshake attempts.
	handshakeBackoff = 1 * time.Second

	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// wireMessage is the JSON frame exchanged with the backend websocket.
type wireMessage struct {
	Path         string `json:"path"`
	SessionID    string `json:"clientSessionId"`
	UserQuery    string `json:"userQuery,omitempty"`
	ChatResponse string `json:"chatResponse,omitempty"`
	Event        string `json:"event,omitempty"`
}

// SocketChannel is the persistent websocket transport. Delivery is
// ordered; each logical event arrives at most once.
type SocketChannel struct {
	url    string
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	connected bool
	onEvent   Handler
	send      chan wireMessage
	done      chan struct{}
}

// NewSocketChannel creates a websocket channel for the given endpoint,
// e.g. "wss://host/ws".
func NewSocketChannel(url string) *SocketChannel {
	return &SocketChannel{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// OnEvent registers the inbound handler. Call before Connect.
func (c *SocketChannel) OnEvent(fn Handler) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

// Connect dials the backend, retrying the handshake with a fixed
// backoff. The context bounds the whole attempt sequence.
func (c *SocketChannel) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= handshakeAttempts; attempt++ {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.sessionID = sessionID
			c.connected = true
			c.send = make(chan wireMessage, 64)
			c.done = make(chan struct{})
			c.mu.Unlock()

			go c.writePump()
			go c.readPump()
			return nil
		}
		lastErr = err
		log.Warn("websocket handshake failed", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(handshakeBackoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrHandshakeFailed, handshakeAttempts, lastErr)
}

// Send queues an outbound event. Events are written in queue order by a
// single writer goroutine.
func (c *SocketChannel) Send(ev Event) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	send := c.send
	sessionID := c.sessionID
	c.mu.Unlock()

	msg, err := encodeWire(ev, sessionID)
	if err != nil {
		return err
	}

	select {
	case send <- msg:
		return nil
	default:
		return fmt.Errorf("transport: send queue full, dropping %s", ev.Kind)
	}
}

// Disconnect closes the connection. Safe to call on a closed channel.
func (c *SocketChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	close(c.done)
	return c.conn.Close()
}

// Connected reports whether the socket is up.
func (c *SocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *SocketChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.mu.Lock()
	conn, send, done := c.conn, c.send, c.done
	c.mu.Unlock()

	for {
		select {
		case msg := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				log.Warn("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *SocketChannel) readPump() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasConnected := c.connected
			c.connected = false
			fn := c.onEvent
			sessionID := c.sessionID
			c.mu.Unlock()

			if wasConnected && fn != nil {
				fn(Event{Kind: KindDisconnected, SessionID: sessionID})
			}
			return
		}
		c.dispatch(data)
	}
}

// dispatch decodes a wire frame and forwards it to the handler. Frames
// tagged for a different session are silently dropped.
func (c *SocketChannel) dispatch(data []byte) {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Debug("discarding malformed frame", "error", err)
		return
	}

	c.mu.Lock()
	fn := c.onEvent
	sessionID := c.sessionID
	c.mu.Unlock()

	if fn == nil {
		return
	}
	if msg.SessionID != "" && msg.SessionID != sessionID {
		return
	}

	ev, ok := decodeWire(msg)
	if !ok {
		log.Debug("discarding frame with unknown path", "path", msg.Path)
		return
	}
	fn(ev)
}

// encodeWire maps an Event onto the backend's frame format.
func encodeWire(ev Event, sessionID string) (wireMessage, error) {
	msg := wireMessage{SessionID: sessionID}
	switch ev.Kind {
	case KindUserMessage:
		msg.Path = "api.chat"
		msg.UserQuery = ev.Text
	case KindChatChunk:
		msg.Path = "api.chat"
		msg.ChatResponse = ev.Text
	case KindSynthesisStarted:
		msg.Path = "api.event"
		msg.Event = "SYNTHESIS_STARTED"
	case KindSynthesisStopped:
		msg.Path = "api.event"
		msg.Event = "SYNTHESIS_STOPPED"
	case KindSessionEnded:
		msg.Path = "api.event"
		msg.Event = "SESSION_ENDED"
	case KindDisconnected:
		msg.Path = "api.event"
		msg.Event = "DISCONNECTED"
	case KindStatus:
		return wireMessage{}, fmt.Errorf("transport: status snapshots are poll-only")
	default:
		return wireMessage{}, fmt.Errorf("transport: cannot encode event kind %d", ev.Kind)
	}
	return msg, nil
}

// decodeWire maps a frame back to an Event.
func decodeWire(msg wireMessage) (Event, bool) {
	switch msg.Path {
	case "api.chat":
		if msg.UserQuery != "" {
			return Event{Kind: KindUserMessage, SessionID: msg.SessionID, Text: msg.UserQuery}, true
		}
		return Event{Kind: KindChatChunk, SessionID: msg.SessionID, Text: msg.ChatResponse}, true
	case "api.event":
		switch msg.Event {
		case "SYNTHESIS_STARTED":
			return Event{Kind: KindSynthesisStarted, SessionID: msg.SessionID}, true
		case "SYNTHESIS_STOPPED":
			return Event{Kind: KindSynthesisStopped, SessionID: msg.SessionID}, true
		case "SESSION_ENDED":
			return Event{Kind: KindSessionEnded, SessionID: msg.SessionID}, true
		case "DISCONNECTED":
			return Event{Kind: KindDisconnected, SessionID: msg.SessionID}, true
		}
		return Event{}, false
	default:
		return Event{}, false
	}
}
