package media

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/jon-soong-msft/azure-avatar-ai/pkg/audioio"
)

// Session is one negotiated peer connection plus its event subchannel.
// At most one Session is live at a time; a reconnect replaces the whole
// Session rather than mutating it in place. Callers must call
// DetachHandlers on the old Session before attaching handlers to a new
// one, otherwise a stale subchannel callback can trigger a duplicate
// reconnect.
type Session struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	onEvent func(Event)
	onAudio func(audioio.Chunk)
	closed  bool

	iceState webrtc.ICEConnectionState

	// Playback clock derived from inbound video RTP timestamps. Used by
	// the liveness probe to detect a hung stream.
	clockMu   sync.Mutex
	clockRate uint32
	firstTS   uint32
	lastTS    uint32
	gotVideo  bool

	firstFrame     chan struct{}
	firstFrameOnce sync.Once
}

func newSession(pc *webrtc.PeerConnection) *Session {
	return &Session{
		pc:         pc,
		iceState:   webrtc.ICEConnectionStateNew,
		firstFrame: make(chan struct{}),
	}
}

// OnEvent registers the subchannel event handler.
func (s *Session) OnEvent(fn func(Event)) {
	s.mu.Lock()
	s.onEvent = fn
	s.mu.Unlock()
}

// OnAudio registers the decoded inbound audio handler.
func (s *Session) OnAudio(fn func(audioio.Chunk)) {
	s.mu.Lock()
	s.onAudio = fn
	s.mu.Unlock()
}

// DetachHandlers drops all registered handlers. Call this on the old
// session before wiring a replacement; detach-then-attach is what keeps
// a stale callback from firing into the new session's lifecycle.
func (s *Session) DetachHandlers() {
	s.mu.Lock()
	s.onEvent = nil
	s.onAudio = nil
	s.mu.Unlock()
}

// FirstFrame returns a channel closed when the first video packet
// arrives.
func (s *Session) FirstFrame() <-chan struct{} {
	return s.firstFrame
}

// PlaybackPosition returns how far the inbound video clock has
// advanced. The liveness probe samples this twice; an unchanged value
// means the stream is hung. Freeze-frame content can stall the RTP
// clock too, so a false positive is possible.
func (s *Session) PlaybackPosition() time.Duration {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if !s.gotVideo || s.clockRate == 0 {
		return 0
	}
	elapsed := s.lastTS - s.firstTS // wrap-tolerant uint32 subtraction
	return time.Duration(float64(elapsed) / float64(s.clockRate) * float64(time.Second))
}

// ICEState returns the current ICE connection state.
func (s *Session) ICEState() webrtc.ICEConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.iceState
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close detaches handlers and tears down the peer connection, stopping
// all inbound tracks.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.onEvent = nil
	s.onAudio = nil
	s.mu.Unlock()
	return s.pc.Close()
}

func (s *Session) setICEState(state webrtc.ICEConnectionState) {
	s.mu.Lock()
	s.iceState = state
	s.mu.Unlock()
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	fn := s.onEvent
	s.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (s *Session) emitAudio(chunk audioio.Chunk) {
	s.mu.Lock()
	fn := s.onAudio
	s.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

func (s *Session) markVideo(timestamp, clockRate uint32) {
	s.clockMu.Lock()
	if !s.gotVideo {
		s.gotVideo = true
		s.clockRate = clockRate
		s.firstTS = timestamp
	}
	s.lastTS = timestamp
	s.clockMu.Unlock()

	s.firstFrameOnce.Do(func() { close(s.firstFrame) })
}
