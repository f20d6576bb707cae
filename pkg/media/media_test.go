package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
)

func TestEncodeDecodeSDP(t *testing.T) {
	desc := &webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n",
	}

	encoded, err := EncodeSDP(desc)
	if err != nil {
		t.Fatalf("EncodeSDP: %v", err)
	}

	decoded, err := DecodeSDP(encoded)
	if err != nil {
		t.Fatalf("DecodeSDP: %v", err)
	}
	if decoded.Type != desc.Type {
		t.Errorf("expected type %s, got %s", desc.Type, decoded.Type)
	}
	if decoded.SDP != desc.SDP {
		t.Errorf("sdp body mangled in round trip")
	}
}

func TestDecodeSDPRejectsGarbage(t *testing.T) {
	if _, err := DecodeSDP("not base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := DecodeSDP("bm90IGpzb24="); err == nil {
		t.Error("expected error for non-JSON payload")
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		raw  string
		want EventKind
		ok   bool
	}{
		{"SWITCH_TO_SPEAKING", EventSynthesisStarted, true},
		{"SWITCH_TO_IDLE", EventSynthesisStopped, true},
		{"SESSION_END", EventSessionEnded, true},
		{"SOMETHING_ELSE", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		ev, ok := decodeEvent(tt.raw)
		if ok != tt.ok {
			t.Errorf("decodeEvent(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			continue
		}
		if ok && ev.Kind != tt.want {
			t.Errorf("decodeEvent(%q) = %s, want %s", tt.raw, ev.Kind, tt.want)
		}
	}
}

func TestPlaybackClockAdvances(t *testing.T) {
	s := newSession(nil)

	if got := s.PlaybackPosition(); got != 0 {
		t.Errorf("expected zero position before video, got %v", got)
	}

	s.markVideo(90000, 90000) // first packet
	s.markVideo(180000, 90000)

	if got := s.PlaybackPosition(); got != time.Second {
		t.Errorf("expected 1s position, got %v", got)
	}

	select {
	case <-s.FirstFrame():
	default:
		t.Error("FirstFrame should be closed after first packet")
	}
}

func TestPlaybackClockToleratesWrap(t *testing.T) {
	s := newSession(nil)
	const nearMax = ^uint32(0) - 45000
	s.markVideo(nearMax, 90000)
	s.markVideo(45000-1, 90000) // wrapped past zero

	if got := s.PlaybackPosition(); got < 900*time.Millisecond || got > 1100*time.Millisecond {
		t.Errorf("expected ~1s across wraparound, got %v", got)
	}
}

func TestDetachHandlersStopsDelivery(t *testing.T) {
	s := newSession(nil)

	fired := 0
	s.OnEvent(func(ev Event) { fired++ })
	s.emit(Event{Kind: EventSynthesisStarted})
	if fired != 1 {
		t.Fatalf("expected handler to fire once, got %d", fired)
	}

	s.DetachHandlers()
	s.emit(Event{Kind: EventSessionEnded})
	if fired != 1 {
		t.Errorf("detached handler must not fire, got %d calls", fired)
	}
}

func TestNegotiateRequiresRelay(t *testing.T) {
	n := NewNegotiator(func(ctx context.Context, offer string) (string, error) {
		t.Fatal("exchange must not be called without relay")
		return "", nil
	})
	if _, err := n.Negotiate(context.Background(), Relay{}); !errors.Is(err, ErrNoRelay) {
		t.Fatalf("expected ErrNoRelay, got %v", err)
	}
}

func TestNegotiateSurfacesExchangeFailure(t *testing.T) {
	exchangeCalled := false
	n := NewNegotiator(func(ctx context.Context, offer string) (string, error) {
		exchangeCalled = true
		if offer == "" {
			t.Error("expected non-empty encoded offer")
		}
		return "", errors.New("backend says no")
	})

	_, err := n.Negotiate(context.Background(), Relay{
		URL:        "turn:relay.example.com:3478",
		Username:   "user",
		Credential: "pass",
	})
	if !errors.Is(err, ErrNegotiationFailed) {
		t.Fatalf("expected ErrNegotiationFailed, got %v", err)
	}
	if !exchangeCalled {
		t.Error("exchange should have been attempted")
	}
}
