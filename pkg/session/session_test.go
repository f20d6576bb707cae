package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jon-soong-msft/azure-avatar-ai/pkg/media"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/transport"
)

type fakeMedia struct {
	mu          sync.Mutex
	onEvent     func(media.Event)
	firstFrame  chan struct{}
	pos         time.Duration
	DetachCalls int
	CloseCalls  int

	PositionFunc func() time.Duration
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{firstFrame: make(chan struct{})}
}

func (f *fakeMedia) OnEvent(fn func(media.Event)) {
	f.mu.Lock()
	f.onEvent = fn
	f.mu.Unlock()
}

func (f *fakeMedia) DetachHandlers() {
	f.mu.Lock()
	f.DetachCalls++
	f.onEvent = nil
	f.mu.Unlock()
}

func (f *fakeMedia) FirstFrame() <-chan struct{} { return f.firstFrame }

func (f *fakeMedia) PlaybackPosition() time.Duration {
	if f.PositionFunc != nil {
		return f.PositionFunc()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakeMedia) Close() error {
	f.mu.Lock()
	f.CloseCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeMedia) emit(ev media.Event) {
	f.mu.Lock()
	fn := f.onEvent
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

type fakeCapture struct {
	mu         sync.Mutex
	StartCalls int
	StopCalls  int
	StartErr   error
}

func (f *fakeCapture) Start(ctx context.Context) error {
	f.mu.Lock()
	f.StartCalls++
	f.mu.Unlock()
	return f.StartErr
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	f.StopCalls++
	f.mu.Unlock()
	return nil
}

// newTestSession builds a started session with one live fake media
// epoch. dialed receives every fake created by subsequent dials.
func newTestSession(t *testing.T, cfg Config) (*Session, *transport.Mock, *fakeMedia, chan *fakeMedia) {
	t.Helper()
	channel := transport.NewMock()
	dialed := make(chan *fakeMedia, 4)
	first := newFakeMedia()
	firstUsed := false
	dial := func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error) {
		if !firstUsed {
			firstUsed = true
			return first, nil
		}
		fm := newFakeMedia()
		dialed <- fm
		return fm, nil
	}

	s, err := New(cfg, channel, dial, &fakeCapture{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s, channel, first, dialed
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", s.State(), want)
}

func TestStartPromotesOnFirstFrame(t *testing.T) {
	s, _, fm, _ := newTestSession(t, Config{AutoReconnect: true})
	if got := s.State(); got != StateConnecting {
		t.Fatalf("state after Start = %v, want connecting", got)
	}
	close(fm.firstFrame)
	waitState(t, s, StateActive)
}

func TestSynthesisEventsToggleSpeaking(t *testing.T) {
	s, _, fm, _ := newTestSession(t, Config{})
	close(fm.firstFrame)
	waitState(t, s, StateActive)

	fm.emit(media.Event{Kind: media.EventSynthesisStarted})
	waitState(t, s, StateSpeaking)
	fm.emit(media.Event{Kind: media.EventSynthesisStopped})
	waitState(t, s, StateActive)
}

func TestIdleFallbackAfterLongSilence(t *testing.T) {
	s, _, fm, _ := newTestSession(t, Config{})
	close(fm.firstFrame)
	waitState(t, s, StateActive)

	fm.emit(media.Event{Kind: media.EventSynthesisStarted})
	waitState(t, s, StateSpeaking)

	s.mu.Lock()
	s.lastInteraction = time.Now().Add(-idleSuppress - time.Minute)
	s.mu.Unlock()

	fm.emit(media.Event{Kind: media.EventSynthesisStopped})
	waitState(t, s, StateIdle)
}

func TestReconnectGuard(t *testing.T) {
	cases := []struct {
		name          string
		autoReconnect bool
		userClosed    bool
		reconnecting  bool
		idle          time.Duration
		want          bool
	}{
		{"all conditions hold", true, false, false, time.Second, true},
		{"auto-reconnect disabled", false, false, false, time.Second, false},
		{"closed by user", true, true, false, time.Second, false},
		{"already reconnecting", true, false, true, time.Second, false},
		{"idle past bound", true, false, false, idleSuppress + time.Second, false},
		{"idle just inside bound", true, false, false, idleSuppress - 5*time.Second, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, fm, dialed := newTestSession(t, Config{AutoReconnect: tc.autoReconnect})
			close(fm.firstFrame)
			waitState(t, s, StateActive)

			s.mu.Lock()
			s.userClosed = tc.userClosed
			s.reconnecting = tc.reconnecting
			s.lastInteraction = time.Now().Add(-tc.idle)
			s.settledAt = time.Now().Add(-time.Second)
			s.mu.Unlock()

			s.triggerReconnect("test trigger")

			select {
			case <-dialed:
				if !tc.want {
					t.Fatal("reconnect dialed, want suppressed")
				}
			case <-time.After(200 * time.Millisecond):
				if tc.want {
					t.Fatal("reconnect suppressed, want dialed")
				}
			}
		})
	}
}

func TestDuplicateTriggersDialOnce(t *testing.T) {
	s, _, fm, dialed := newTestSession(t, Config{AutoReconnect: true})
	close(fm.firstFrame)
	waitState(t, s, StateActive)

	s.mu.Lock()
	s.settledAt = time.Now().Add(-time.Second)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.triggerReconnect("stalled")
		}()
	}
	wg.Wait()

	select {
	case <-dialed:
	case <-time.After(time.Second):
		t.Fatal("expected one reconnect dial")
	}
	select {
	case <-dialed:
		t.Fatal("duplicate reconnect dial")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDisconnectDuringSettleIsIgnored(t *testing.T) {
	s, channel, fm, dialed := newTestSession(t, Config{AutoReconnect: true})
	close(fm.firstFrame)
	waitState(t, s, StateActive)

	// Still inside the settle window right after the first frame.
	channel.Emit(transport.Event{Kind: transport.KindDisconnected, SessionID: s.ID()})

	select {
	case <-dialed:
		t.Fatal("reconnect during settle window")
	case <-time.After(200 * time.Millisecond):
	}
	waitState(t, s, StateActive)
}

func TestReconnectDetachesOldEpochFirst(t *testing.T) {
	s, _, fm, dialed := newTestSession(t, Config{AutoReconnect: true})
	close(fm.firstFrame)
	waitState(t, s, StateActive)

	s.mu.Lock()
	s.settledAt = time.Now().Add(-time.Second)
	s.mu.Unlock()

	fm.emit(media.Event{Kind: media.EventSessionEnded})

	var next *fakeMedia
	select {
	case next = <-dialed:
	case <-time.After(time.Second):
		t.Fatal("no reconnect dial")
	}

	fm.mu.Lock()
	detached, closed := fm.DetachCalls, fm.CloseCalls
	fm.mu.Unlock()
	if detached == 0 || closed == 0 {
		t.Fatalf("old epoch detach=%d close=%d, want both > 0", detached, closed)
	}

	// Stale events from the replaced epoch must be inert.
	fm.emit(media.Event{Kind: media.EventSessionEnded})

	close(next.firstFrame)
	waitState(t, s, StateActive)
}

func TestClosedSessionIgnoresStaleEvents(t *testing.T) {
	s, channel, fm, dialed := newTestSession(t, Config{AutoReconnect: true})
	close(fm.firstFrame)
	waitState(t, s, StateActive)

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}

	channel.Emit(transport.Event{Kind: transport.KindDisconnected, SessionID: s.ID()})
	fm.emit(media.Event{Kind: media.EventSessionEnded})

	select {
	case <-dialed:
		t.Fatal("closed session reconnected")
	case <-time.After(200 * time.Millisecond):
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestCloseNotifiesServerAndTransport(t *testing.T) {
	channel := transport.NewMock()
	fm := newFakeMedia()
	dial := func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error) {
		return fm, nil
	}
	var notified string
	capt := &fakeCapture{}
	s, err := New(Config{}, channel, dial, capt,
		WithCloseNotifier(func(ctx context.Context, sessionID string) error {
			notified = sessionID
			return nil
		}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if notified != s.ID() {
		t.Errorf("notified session = %q, want %q", notified, s.ID())
	}
	if channel.DisconnectCalls != 1 {
		t.Errorf("transport disconnects = %d, want 1", channel.DisconnectCalls)
	}
	if capt.StopCalls != 1 {
		t.Errorf("capture stops = %d, want 1", capt.StopCalls)
	}
	// Close twice is fine.
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestStartFailsWhenDialFails(t *testing.T) {
	channel := transport.NewMock()
	boom := errors.New("negotiation refused")
	dial := func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error) {
		return nil, boom
	}
	capt := &fakeCapture{}
	s, err := New(Config{}, channel, dial, capt)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start error = %v, want %v", err, boom)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state after failed start = %v, want idle", got)
	}
	// No media session means no one consumes the microphone.
	capt.mu.Lock()
	stops := capt.StopCalls
	capt.mu.Unlock()
	if stops != 1 {
		t.Errorf("capture stops after failed dial = %d, want 1", stops)
	}
}

func TestDialCompletingAfterCloseIsDiscarded(t *testing.T) {
	channel := transport.NewMock()
	first := newFakeMedia()
	late := newFakeMedia()
	dialEntered := make(chan struct{})
	release := make(chan struct{})
	dials := 0
	dial := func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error) {
		dials++
		if dials == 1 {
			return first, nil
		}
		close(dialEntered)
		<-release
		return late, nil
	}

	s, err := New(Config{AutoReconnect: true}, channel, dial, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(first.firstFrame)
	waitState(t, s, StateActive)

	s.mu.Lock()
	s.settledAt = time.Now().Add(-time.Second)
	s.mu.Unlock()

	// Hold the reconnect dial open across Close, then let it finish.
	s.triggerReconnect("stalled")
	<-dialEntered
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		late.mu.Lock()
		closed := late.CloseCalls
		late.mu.Unlock()
		if closed == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	late.mu.Lock()
	closed, attached := late.CloseCalls, late.onEvent != nil
	late.mu.Unlock()
	if closed != 1 {
		t.Errorf("late media close calls = %d, want 1", closed)
	}
	if attached {
		t.Error("late media session has handlers attached")
	}
	if got := s.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed", got)
	}
}

func TestStalledPlaybackTriggersReconnectOnce(t *testing.T) {
	channel := transport.NewMock()
	first := newFakeMedia()
	first.PositionFunc = func() time.Duration { return 1500 * time.Millisecond }
	dialed := make(chan *fakeMedia, 4)
	firstUsed := false
	dial := func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error) {
		if !firstUsed {
			firstUsed = true
			return first, nil
		}
		fm := newFakeMedia()
		dialed <- fm
		return fm, nil
	}

	s, err := New(Config{AutoReconnect: true}, channel, dial, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.probeEvery = 10 * time.Millisecond
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	close(first.firstFrame)
	waitState(t, s, StateActive)

	s.mu.Lock()
	s.settledAt = time.Now().Add(-time.Second)
	s.mu.Unlock()

	// The playback clock never advances, so two samples match and the
	// probe fires.
	select {
	case <-dialed:
	case <-time.After(time.Second):
		t.Fatal("stalled playback did not reconnect")
	}
	select {
	case <-dialed:
		t.Fatal("one hang produced a second reconnect dial")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestReconnectFailureSurfacesError(t *testing.T) {
	channel := transport.NewMock()
	fm := newFakeMedia()
	boom := errors.New("relay gone")
	dials := 0
	dial := func(ctx context.Context, sessionID string, reconnecting bool) (MediaSession, error) {
		dials++
		if dials == 1 {
			return fm, nil
		}
		return nil, boom
	}

	errs := make(chan error, 1)
	s, err := New(Config{AutoReconnect: true}, channel, dial, nil,
		WithErrorListener(func(err error) { errs <- err }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	close(fm.firstFrame)
	waitState(t, s, StateActive)

	s.mu.Lock()
	s.settledAt = time.Now().Add(-time.Second)
	s.mu.Unlock()

	s.triggerReconnect("test trigger")

	select {
	case err := <-errs:
		if !errors.Is(err, boom) {
			t.Fatalf("surfaced error = %v, want %v", err, boom)
		}
	case <-time.After(time.Second):
		t.Fatal("no error surfaced")
	}
	waitState(t, s, StateIdle)
}
