// Package media negotiates the avatar's audio/video peer connection.
// It builds a relay-only WebRTC offer, exchanges SDP blobs with the
// backend, and surfaces the inbound tracks plus the out-of-band event
// subchannel the avatar service uses for synthesis signals.
package media

import (
	"errors"
	"time"
)

// Common errors returned by the negotiator.
var (
	ErrNegotiationFailed = errors.New("media: negotiation failed")
	ErrNoRelay           = errors.New("media: relay credentials required")
	ErrSessionClosed     = errors.New("media: session closed")
)

// iceGatherTimeout bounds ICE candidate gathering. The offer is
// finalized with whatever candidates exist when the timer fires, which
// caps worst-case connection setup latency.
const iceGatherTimeout = 2 * time.Second

// Relay describes the TURN relay all media is forced through. There is
// no peer-to-peer fallback.
type Relay struct {
	URL        string
	Username   string
	Credential string
}

// EventKind identifies an out-of-band event from the avatar service.
type EventKind int

const (
	// EventSynthesisStarted signals the avatar began speaking.
	EventSynthesisStarted EventKind = iota

	// EventSynthesisStopped signals the avatar returned to idle.
	EventSynthesisStopped

	// EventSessionEnded signals the service tore the session down.
	EventSessionEnded
)

// String returns a short name for logging.
func (k EventKind) String() string {
	switch k {
	case EventSynthesisStarted:
		return "synthesis-started"
	case EventSynthesisStopped:
		return "synthesis-stopped"
	case EventSessionEnded:
		return "session-ended"
	default:
		return "unknown"
	}
}

// Event is a single out-of-band event from the subchannel.
type Event struct {
	Kind EventKind
}

// decodeEvent maps the subchannel's wire strings onto the event union.
func decodeEvent(raw string) (Event, bool) {
	switch raw {
	case "SWITCH_TO_SPEAKING":
		return Event{Kind: EventSynthesisStarted}, true
	case "SWITCH_TO_IDLE":
		return Event{Kind: EventSynthesisStopped}, true
	case "SESSION_END":
		return Event{Kind: EventSessionEnded}, true
	default:
		return Event{}, false
	}
}
