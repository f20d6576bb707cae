package audioio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
)

// deviceSource captures from the default input device. Device errors
// surface at Start, so a missing or denied microphone degrades the
// session instead of crashing it.
type deviceSource struct {
	cfg Config

	mu      sync.Mutex
	stream  *portaudio.Stream
	out     chan Chunk
	done    chan struct{}
	running bool
	closed  bool
}

func newDeviceSource(cfg Config) *deviceSource {
	return &deviceSource{cfg: cfg, out: make(chan Chunk)}
}

func (d *deviceSource) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audioio: portaudio init: %w", err)
	}
	buf := make([]int16, d.cfg.FrameSamples()*d.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(d.cfg.Channels, 0, float64(d.cfg.SampleRate), d.cfg.FrameSamples(), buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("audioio: open capture device: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("audioio: start capture device: %w", err)
	}

	d.stream = stream
	d.running = true
	d.out = make(chan Chunk, 8)
	d.done = make(chan struct{})
	go d.captureLoop(ctx, stream, buf, d.out, d.done)

	log.Info("audio capture started",
		"backend", "device",
		"sample_rate", d.cfg.SampleRate,
		"channels", d.cfg.Channels)
	return nil
}

// captureLoop owns the out channel. It exits, and closes the channel,
// when the device read fails, which includes the stream being aborted
// by Stop.
func (d *deviceSource) captureLoop(ctx context.Context, stream *portaudio.Stream, buf []int16, out chan Chunk, done chan struct{}) {
	defer close(done)
	defer close(out)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := stream.Read(); err != nil {
			log.Debug("audio capture read ended", "error", err)
			return
		}
		samples := make([]int16, len(buf))
		copy(samples, buf)
		select {
		case out <- Chunk{Samples: samples, SampleRate: d.cfg.SampleRate, Channels: d.cfg.Channels}:
		default:
			// Consumer fell behind, drop the frame.
		}
	}
}

func (d *deviceSource) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	stream := d.stream
	done := d.done
	d.stream = nil
	d.mu.Unlock()

	// Abort wakes the blocked device read; the loop then shuts itself
	// down before the stream is released.
	if err := stream.Abort(); err != nil {
		log.Debug("audio capture abort", "error", err)
	}
	<-done
	if err := stream.Close(); err != nil {
		log.Debug("audio capture close", "error", err)
	}
	portaudio.Terminate()
	log.Info("audio capture stopped")
	return nil
}

func (d *deviceSource) Stream() <-chan Chunk {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out
}

func (d *deviceSource) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.Stop()
}

// deviceSink plays on the default output device. Writes gather into
// fixed device frames; a partial trailing frame waits for the next
// chunk.
type deviceSink struct {
	cfg Config

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	pending []int16
	running bool
	closed  bool
}

func newDeviceSink(cfg Config) *deviceSink {
	return &deviceSink{cfg: cfg}
}

func (d *deviceSink) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("audioio: portaudio init: %w", err)
	}
	buf := make([]int16, d.cfg.FrameSamples()*d.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(0, d.cfg.Channels, float64(d.cfg.SampleRate), d.cfg.FrameSamples(), buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("audioio: open playback device: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("audioio: start playback device: %w", err)
	}

	d.stream = stream
	d.buf = buf
	d.running = true

	log.Info("audio playback started",
		"backend", "device",
		"sample_rate", d.cfg.SampleRate,
		"channels", d.cfg.Channels)
	return nil
}

func (d *deviceSink) Write(ctx context.Context, chunk Chunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.running {
		return ErrStopped
	}

	samples := chunk.Samples
	if chunk.SampleRate != d.cfg.SampleRate {
		samples = Resample(samples, chunk.SampleRate, d.cfg.SampleRate)
	}
	d.pending = append(d.pending, samples...)

	for len(d.pending) >= len(d.buf) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		copy(d.buf, d.pending[:len(d.buf)])
		d.pending = d.pending[len(d.buf):]
		if err := d.stream.Write(); err != nil {
			return fmt.Errorf("audioio: playback write: %w", err)
		}
	}
	return nil
}

func (d *deviceSink) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	d.running = false
	d.pending = nil
	if err := d.stream.Abort(); err != nil {
		log.Debug("audio playback abort", "error", err)
	}
	if err := d.stream.Close(); err != nil {
		log.Debug("audio playback close", "error", err)
	}
	d.stream = nil
	portaudio.Terminate()
	log.Info("audio playback stopped")
	return nil
}

func (d *deviceSink) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()
	return d.Stop()
}
