// Package audioio moves PCM16 audio between the avatar client and the
// machine's audio devices. The capture side feeds microphone frames to
// the speech recognizer; the playback side renders the avatar's decoded
// voice. Devices are reached through PortAudio, with a mock backend for
// tests and audio-less environments.
package audioio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by operations on a closed source or sink.
	ErrClosed = errors.New("audioio: closed")
	// ErrStopped is returned by Write on a sink that is not running.
	ErrStopped = errors.New("audioio: not running")
)

// Chunk is one frame of interleaved PCM16 audio.
type Chunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes renders the samples as little-endian PCM, the layout the
// recognizer's audio endpoint expects.
func (c Chunk) Bytes() []byte {
	buf := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

// Duration is the playback time this chunk covers.
func (c Chunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Source captures audio frames from an input device.
type Source interface {
	// Start begins capture. Frames arrive on Stream until Stop.
	Start(ctx context.Context) error

	// Stop halts capture and closes the stream. Safe to call twice.
	Stop() error

	// Stream delivers captured frames. Closed when the source stops.
	Stream() <-chan Chunk

	// Close releases the device. A closed source cannot restart.
	Close() error
}

// Sink plays audio frames on an output device.
type Sink interface {
	// Start opens the output device for playback.
	Start(ctx context.Context) error

	// Stop halts playback and drops buffered audio. Safe to call twice.
	Stop() error

	// Write queues a chunk for playback. Chunks at a different sample
	// rate than the sink's are resampled on the way in.
	Write(ctx context.Context, chunk Chunk) error

	// Close releases the device. A closed sink cannot restart.
	Close() error
}
