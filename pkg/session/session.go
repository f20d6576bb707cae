// Package session is the avatar client core: one Session object owns
// the transport channel, the live media session, and speech capture,
// and drives the state machine that keeps them consistent across
// disconnects and reconnects.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/media"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/transport"
)

var (
	// ErrAlreadyStarted is returned by Start on a session that is past Idle.
	ErrAlreadyStarted = errors.New("session: already started")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")
)

const (
	// settleDelay is how long after the first media frame the session
	// is considered stable. Reconnect triggers fire spuriously while
	// the remote pipeline is still warming up, so they are ignored
	// until the session has settled.
	settleDelay = 5 * time.Second

	// idleSuppress bounds how stale the last user interaction may be
	// for an automatic reconnect to still fire. Past this the session
	// is abandoned rather than silently revived.
	idleSuppress = 300 * time.Second

	probePeriod = 2 * time.Second
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateSpeaking
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateSpeaking:
		return "speaking"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MediaSession is the slice of media.Session the state machine drives.
type MediaSession interface {
	OnEvent(fn func(media.Event))
	DetachHandlers()
	FirstFrame() <-chan struct{}
	PlaybackPosition() time.Duration
	Close() error
}

// MediaDialer establishes a fresh media session. reconnecting is true
// when the dial replaces a previous session for the same session ID.
type MediaDialer func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error)

// Capture is the speech input the session starts and stops alongside
// each media epoch.
type Capture interface {
	Start(ctx context.Context) error
	Stop() error
}

// Config carries the session knobs. Zero value means auto-reconnect off.
type Config struct {
	// AutoReconnect enables the guarded reconnect path on transport
	// loss, media session end, liveness hangs, and status flips.
	AutoReconnect bool
}

// Session coordinates transport, media, and speech for one avatar
// conversation. All mutable state lives here; a stopped session is
// discarded, not reused.
type Session struct {
	id      string
	cfg     Config
	channel transport.Channel
	dial    MediaDialer
	capture Capture

	// notifyClose tells the server the avatar connection is done.
	// Optional.
	notifyClose func(ctx context.Context, sessionID string) error

	onState func(State)
	onError func(error)
	onEvent transport.Handler

	mu              sync.Mutex
	state           State
	userClosed      bool
	reconnecting    bool
	lastInteraction time.Time
	settledAt       time.Time

	media       MediaSession
	epochCancel context.CancelFunc

	// probeEvery is the liveness sampling interval, probePeriod unless
	// a test shortens it.
	probeEvery time.Duration

	runCtx    context.Context
	runCancel context.CancelFunc
}

// Option configures a Session.
type Option func(*Session)

// WithCloseNotifier sets the server-side disconnect callback invoked
// from Close.
func WithCloseNotifier(fn func(ctx context.Context, sessionID string) error) Option {
	return func(s *Session) { s.notifyClose = fn }
}

// WithStateListener registers a callback invoked on every state change.
func WithStateListener(fn func(State)) Option {
	return func(s *Session) { s.onState = fn }
}

// WithErrorListener registers a callback for non-fatal errors, such as
// a failed reconnect negotiation that the user may retry manually.
func WithErrorListener(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// WithEventListener forwards chat-bearing transport events (chunks,
// user messages) to the caller, typically a chat renderer.
func WithEventListener(fn transport.Handler) Option {
	return func(s *Session) { s.onEvent = fn }
}

// New builds an idle session. channel and dial are required; capture
// may be nil for a voiceless session.
func New(cfg Config, channel transport.Channel, dial MediaDialer, capture Capture, opts ...Option) (*Session, error) {
	if channel == nil {
		return nil, errors.New("session: transport channel required")
	}
	if dial == nil {
		return nil, errors.New("session: media dialer required")
	}
	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		channel:    channel,
		dial:       dial,
		capture:    capture,
		state:      StateIdle,
		probeEvery: probePeriod,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch records a user interaction. Reconnects are only attempted
// within idleSuppress of the last touch.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastInteraction = time.Now()
	s.mu.Unlock()
}

// Start connects the transport, starts speech capture, and negotiates
// the first media session. It returns once media is negotiated; the
// transition to Active happens when the first frame arrives.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.lastInteraction = time.Now()
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.channel.OnEvent(s.handleTransportEvent)
	if !s.channel.Connected() {
		if err := s.channel.Connect(ctx, s.id); err != nil {
			s.fail()
			return err
		}
	}

	if s.capture != nil {
		if err := s.capture.Start(s.runCtx); err != nil {
			// Voice input is optional. The session carries on without it.
			log.Warn("speech capture unavailable", "error", err)
		}
	}

	sess, err := s.dial(ctx, s.id, false)
	if err != nil {
		// No media session means no one consumes the microphone.
		if s.capture != nil {
			if stopErr := s.capture.Stop(); stopErr != nil {
				log.Debug("speech capture stop", "error", stopErr)
			}
		}
		s.fail()
		return err
	}
	s.attachMedia(sess)
	return nil
}

// Close stops the session permanently. Late events arriving after
// Close never trigger a reconnect.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.userClosed = true
	s.setStateLocked(StateClosed)
	cancel := s.epochCancel
	s.epochCancel = nil
	sess := s.media
	s.media = nil
	runCancel := s.runCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if s.capture != nil {
		if err := s.capture.Stop(); err != nil {
			log.Warn("speech capture stop", "error", err)
		}
	}
	if sess != nil {
		sess.DetachHandlers()
		if err := sess.Close(); err != nil {
			log.Warn("media close", "error", err)
		}
	}
	if err := s.channel.Disconnect(); err != nil {
		log.Warn("transport disconnect", "error", err)
	}
	if s.notifyClose != nil {
		if err := s.notifyClose(ctx, s.id); err != nil {
			log.Warn("server disconnect notify", "error", err)
		}
	}
	if runCancel != nil {
		runCancel()
	}
	return nil
}

// attachMedia swaps in a freshly negotiated media session. The old
// session's handlers are detached and its epoch context cancelled
// before the new handlers attach, so a dying session can never race a
// reconnect trigger against its replacement.
func (s *Session) attachMedia(sess MediaSession) {
	s.mu.Lock()
	if s.state == StateClosed {
		// A dial that loses the race against Close has no owner left;
		// the tracks stop here instead of leaking.
		s.mu.Unlock()
		if err := sess.Close(); err != nil {
			log.Debug("late media close", "error", err)
		}
		return
	}
	old := s.media
	oldCancel := s.epochCancel
	s.media = sess
	epoch, cancel := context.WithCancel(s.runCtx)
	s.epochCancel = cancel
	s.mu.Unlock()

	if old != nil {
		old.DetachHandlers()
	}
	if oldCancel != nil {
		oldCancel()
	}
	if old != nil {
		if err := old.Close(); err != nil {
			log.Debug("previous media close", "error", err)
		}
	}

	sess.OnEvent(s.handleMediaEvent)
	go s.awaitFirstFrame(epoch, sess)
	go s.probeLiveness(epoch, sess)
}

// awaitFirstFrame promotes the session to Active once video plays, and
// starts the settle clock.
func (s *Session) awaitFirstFrame(ctx context.Context, sess MediaSession) {
	select {
	case <-ctx.Done():
		return
	case <-sess.FirstFrame():
	}
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateReconnecting {
		s.reconnecting = false
		s.settledAt = time.Now().Add(settleDelay)
		s.setStateLocked(StateActive)
	}
	s.mu.Unlock()
}

func (s *Session) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.KindSynthesisStarted:
		s.setSpeaking(true)
	case transport.KindSynthesisStopped:
		s.setSpeaking(false)
	case transport.KindDisconnected, transport.KindSessionEnded:
		s.triggerReconnect("transport " + ev.Kind.String())
	case transport.KindStatus:
		// Flip detection lives in the poll channel, which reports a
		// true-to-false transition as KindDisconnected. Snapshots need
		// no action here.
	case transport.KindChatChunk, transport.KindUserMessage:
		if s.onEvent != nil {
			s.onEvent(ev)
		}
	}
}

func (s *Session) handleMediaEvent(ev media.Event) {
	switch ev.Kind {
	case media.EventSynthesisStarted:
		s.setSpeaking(true)
	case media.EventSynthesisStopped:
		s.setSpeaking(false)
	case media.EventSessionEnded:
		s.triggerReconnect("media session end")
	}
}

// setSpeaking toggles Active and Speaking. When synthesis stops on a
// session whose user has been away past the idle bound, the session
// falls back to Idle without tearing anything down; the next Touch and
// utterance revive it in place.
func (s *Session) setSpeaking(speaking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case speaking && s.state == StateActive:
		s.setStateLocked(StateSpeaking)
	case speaking && s.state == StateIdle:
		s.setStateLocked(StateSpeaking)
	case !speaking && s.state == StateSpeaking:
		if time.Since(s.lastInteraction) >= idleSuppress {
			s.setStateLocked(StateIdle)
		} else {
			s.setStateLocked(StateActive)
		}
	}
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	log.Debug("session state", "session", s.id, "from", s.state.String(), "to", st.String())
	s.state = st
	if s.onState != nil {
		go s.onState(st)
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	if s.state != StateClosed {
		s.setStateLocked(StateIdle)
	}
	s.mu.Unlock()
}

func (s *Session) surfaceError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
