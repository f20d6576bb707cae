package transport

import (
	"context"
	"sync"
	"time"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
)

// pollPeriod is how often the fallback channel samples the status
// endpoint.
const pollPeriod = 2 * time.Second

// StatusFunc reports whether the backend's speech synthesizer is
// currently connected.
type StatusFunc func(ctx context.Context) (bool, error)

// SendFunc delivers an outbound event over plain HTTP.
type SendFunc func(ctx context.Context, ev Event) error

// PollChannel is the request/response fallback used when a persistent
// websocket is unavailable. It offers no cross-poll ordering; consumers
// get periodic full-state snapshots and a synthetic disconnect event
// when the synthesizer status flips from connected to disconnected.
type PollChannel struct {
	status StatusFunc
	sendFn SendFunc
	period time.Duration

	mu        sync.Mutex
	sessionID string
	connected bool
	onEvent   Handler
	cancel    context.CancelFunc

	// prev tracks the last observed synthesizer state; nil until the
	// first successful poll.
	prev *bool
}

// NewPollChannel creates a polling fallback channel.
func NewPollChannel(status StatusFunc, send SendFunc) *PollChannel {
	return &PollChannel{
		status: status,
		sendFn: send,
		period: pollPeriod,
	}
}

// OnEvent registers the inbound handler. Call before Connect.
func (c *PollChannel) OnEvent(fn Handler) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

// Connect starts the poll loop. There is no handshake to fail; errors
// from individual polls are logged and the loop keeps going. The loop
// runs until Disconnect, not until ctx ends: the ctx bounds only the
// connection attempt, same as the socket channel's handshake.
func (c *PollChannel) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	c.sessionID = sessionID
	c.connected = true
	c.cancel = cancel
	c.prev = nil
	c.mu.Unlock()

	go c.pollLoop(loopCtx)
	return nil
}

// Send delivers the event over HTTP. A channel built without a send
// function is receive-only.
func (c *PollChannel) Send(ev Event) error {
	if c.sendFn == nil {
		return ErrSendUnsupported
	}
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	ev.SessionID = sessionID
	return c.sendFn(context.Background(), ev)
}

// Disconnect stops the poll loop. Safe to call twice.
func (c *PollChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.cancel()
	return nil
}

// Connected reports whether the poll loop is running.
func (c *PollChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *PollChannel) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce samples the status endpoint and dispatches a snapshot.
// A connected -> disconnected flip also dispatches a synthetic
// disconnect, the same path an explicit disconnect event takes.
func (c *PollChannel) pollOnce(ctx context.Context) {
	current, err := c.status(ctx)
	if err != nil {
		log.Debug("status poll failed", "error", err)
		return
	}

	c.mu.Lock()
	fn := c.onEvent
	sessionID := c.sessionID
	prev := c.prev
	c.prev = &current
	c.mu.Unlock()

	if fn == nil {
		return
	}

	fn(Event{Kind: KindStatus, SessionID: sessionID, SynthesizerConnected: current})

	if prev != nil && *prev && !current {
		fn(Event{Kind: KindDisconnected, SessionID: sessionID})
	}
}
