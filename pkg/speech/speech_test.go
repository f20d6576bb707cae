package speech

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jon-soong-msft/azure-avatar-ai/pkg/audioio"
)

func TestHandleResultDispatchesFinalUtterances(t *testing.T) {
	r := NewStreamRecognizer(nil, "en-US")
	r.startedAt = time.Now()

	var got []Utterance
	r.OnUtterance(func(u Utterance) { got = append(got, u) })

	r.handleResult([]byte(`{"RecognitionStatus":"Success","DisplayText":"hello there","Offset":10000000,"Duration":5000000}`))
	r.handleResult([]byte(`{"RecognitionStatus":"Success","DisplayText":""}`)) // silence
	r.handleResult([]byte(`{"RecognitionStatus":"InitialSilenceTimeout"}`))
	r.handleResult([]byte(`not json`))

	if len(got) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(got))
	}
	u := got[0]
	if u.Text != "hello there" {
		t.Errorf("expected text 'hello there', got %q", u.Text)
	}
	// Offsets arrive in 100ns ticks.
	if u.Offset != time.Second {
		t.Errorf("expected 1s offset, got %v", u.Offset)
	}
	if u.Duration != 500*time.Millisecond {
		t.Errorf("expected 500ms duration, got %v", u.Duration)
	}
}

func TestStreamRecognizerRequiresTokenProvider(t *testing.T) {
	r := NewStreamRecognizer(nil, "en-US")
	if err := r.Start(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestStreamRecognizerSendBeforeStart(t *testing.T) {
	r := NewStreamRecognizer(nil, "en-US")
	if err := r.SendAudio([]byte{0, 0}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

func TestCaptureResamplesAndForwards(t *testing.T) {
	cfg := audioio.CaptureConfig()
	cfg.SampleRate = 48000
	cfg.FrameDuration = 10 * time.Millisecond
	source := audioio.NewMockSource(cfg, audioio.WithTone(440, 0.5))
	defer source.Close()

	rec := NewMock()
	capture := NewCapture(source, rec)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.AudioSent)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for forwarded audio")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := capture.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if rec.StopCalls != 1 {
		t.Errorf("expected recognizer stopped once, got %d", rec.StopCalls)
	}

	// 10ms at 48k resampled to 16k mono is 160 samples = 320 bytes.
	rec.mu.Lock()
	first := rec.AudioSent[0]
	rec.mu.Unlock()
	if len(first) != 320 {
		t.Errorf("expected 320-byte resampled frame, got %d", len(first))
	}
}

func TestCaptureDegradesWithoutMicrophone(t *testing.T) {
	cfg := audioio.CaptureConfig()
	source := audioio.NewMockSource(cfg)
	source.Close() // closed source refuses to start, like a denied mic

	rec := NewMock()
	capture := NewCapture(source, rec)

	if err := capture.Start(context.Background()); err != nil {
		t.Fatalf("expected degraded start to succeed, got %v", err)
	}
	if rec.StartCalls != 1 {
		t.Errorf("recognizer should still start for typed input, got %d starts", rec.StartCalls)
	}
	capture.Stop()
}
