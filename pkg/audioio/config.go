package audioio

import (
	"fmt"
	"time"
)

// Backend selects the audio implementation.
type Backend string

const (
	// BackendAuto picks the device backend.
	BackendAuto Backend = "auto"
	// BackendDevice uses the default PortAudio input and output devices.
	BackendDevice Backend = "device"
	// BackendMock generates and discards audio in memory.
	BackendMock Backend = "mock"
)

// Config describes one side of the audio path.
type Config struct {
	Backend    Backend
	SampleRate int
	Channels   int

	// FrameDuration is how much audio each chunk carries.
	FrameDuration time.Duration
}

// CaptureConfig is the microphone path: 16 kHz mono 20 ms frames, which
// is what the speech recognizer ingests.
func CaptureConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    16000,
		Channels:      1,
		FrameDuration: 20 * time.Millisecond,
	}
}

// PlaybackConfig is the avatar voice path: 48 kHz stereo, matching the
// opus decode rate of the inbound media track.
func PlaybackConfig() Config {
	return Config{
		Backend:       BackendAuto,
		SampleRate:    48000,
		Channels:      2,
		FrameDuration: 20 * time.Millisecond,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample rate %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audioio: channel count %d", c.Channels)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("audioio: frame duration %v", c.FrameDuration)
	}
	return nil
}

// FrameSamples is the number of sample frames per chunk, per channel.
func (c Config) FrameSamples() int {
	return int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second))
}
