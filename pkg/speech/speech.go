// Package speech captures microphone audio and turns it into recognized
// utterances. Recognition itself is delegated to the vendor's streaming
// endpoint; this package handles tokens, the capture/resample pipeline,
// and utterance delivery.
package speech

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by recognizers.
var (
	ErrNotStarted     = errors.New("speech: recognizer not started")
	ErrAlreadyStarted = errors.New("speech: recognizer already started")
	ErrNoToken        = errors.New("speech: token provider required")
)

// recognizerSampleRate is the PCM16 rate the streaming endpoint expects.
const recognizerSampleRate = 16000

// Utterance is one finalized recognition result. It is transient: the
// session consumes it immediately into a chat request.
type Utterance struct {
	// Text is the recognized text.
	Text string

	// StartedAt is the monotonic timestamp when recognition of this
	// utterance began, used for speech-to-text latency measurement.
	StartedAt time.Time

	// Offset is the utterance's position in the audio stream.
	Offset time.Duration

	// Duration is the spoken length of the utterance.
	Duration time.Duration
}

// Token is a short-lived bearer credential for the streaming endpoint.
type Token struct {
	Value  string
	Region string
}

// TokenProvider supplies recognition tokens. Implementations cache and
// refresh as needed.
type TokenProvider func(ctx context.Context) (Token, error)

// Recognizer converts streamed PCM16 audio into utterances.
type Recognizer interface {
	// Start connects to the recognition endpoint and begins a
	// continuous session.
	Start(ctx context.Context) error

	// Stop ends the session. Safe to call twice.
	Stop() error

	// SendAudio streams PCM16 mono audio at 16kHz.
	SendAudio(pcm []byte) error

	// OnUtterance registers the handler for finalized utterances.
	// Call before Start.
	OnUtterance(fn func(Utterance))

	// OnError registers the handler for recognition errors.
	OnError(fn func(error))
}
