// Package transport carries chat and control events between the client
// and the backend. Two channel implementations exist: a persistent
// websocket channel with ordered delivery, and a polling fallback that
// reconstructs state from periodic status snapshots.
package transport

import (
	"context"
	"errors"
)

// Common errors returned by channels.
var (
	ErrNotConnected     = errors.New("transport: channel not connected")
	ErrAlreadyConnected = errors.New("transport: channel already connected")
	ErrHandshakeFailed  = errors.New("transport: handshake failed")
	ErrSendUnsupported  = errors.New("transport: channel cannot send")
)

// EventKind identifies an inbound or outbound event. Inbound events are
// dispatched as a tagged union so missing cases show up in switches
// instead of silently falling through string comparisons.
type EventKind int

const (
	// KindChatChunk is a piece of streamed assistant reply text.
	// The text may carry inline latency tags, stripped by the renderer.
	KindChatChunk EventKind = iota

	// KindUserMessage is a finalized user utterance echoed back so the
	// renderer can open a fresh reply bubble.
	KindUserMessage

	// KindSynthesisStarted signals the avatar began speaking.
	KindSynthesisStarted

	// KindSynthesisStopped signals the avatar finished speaking.
	KindSynthesisStopped

	// KindSessionEnded signals the server closed the avatar session.
	KindSessionEnded

	// KindDisconnected signals the channel itself dropped.
	KindDisconnected

	// KindStatus is a full-state snapshot from the polling fallback.
	KindStatus
)

// String returns a short name for logging.
func (k EventKind) String() string {
	switch k {
	case KindChatChunk:
		return "chat-chunk"
	case KindUserMessage:
		return "user-message"
	case KindSynthesisStarted:
		return "synthesis-started"
	case KindSynthesisStopped:
		return "synthesis-stopped"
	case KindSessionEnded:
		return "session-ended"
	case KindDisconnected:
		return "disconnected"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Event is a single message on a channel.
type Event struct {
	Kind      EventKind
	SessionID string

	// Text holds chat or user-message content.
	Text string

	// SynthesizerConnected is populated for KindStatus snapshots.
	SynthesizerConnected bool
}

// Handler receives inbound events. Handlers run on the channel's read
// goroutine and must not block.
type Handler func(Event)

// Channel is the transport contract shared by the websocket and polling
// implementations.
type Channel interface {
	// Connect establishes the channel for the given session.
	Connect(ctx context.Context, sessionID string) error

	// Send transmits an event to the backend.
	Send(ev Event) error

	// OnEvent registers the inbound event handler.
	// Call this before Connect.
	OnEvent(fn Handler)

	// Disconnect tears the channel down. Safe to call twice.
	Disconnect() error

	// Connected reports whether the channel is currently usable.
	Connected() bool
}
