package audioio

import (
	"context"
	"math"
	"sync"
	"time"
)

// MockSource emits synthetic frames on the configured cadence, silence
// unless a tone is set. It stands in for a microphone in tests and in
// environments without audio devices.
type MockSource struct {
	cfg  Config
	freq float64
	amp  float64

	mu      sync.Mutex
	running bool
	closed  bool
	out     chan Chunk
	stop    chan struct{}
	phase   float64
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithTone makes the mock emit a sine wave instead of silence.
func WithTone(freq, amplitude float64) MockOption {
	return func(m *MockSource) {
		m.freq = freq
		m.amp = amplitude
	}
}

// NewMockSource builds a stopped mock source.
func NewMockSource(cfg Config, opts ...MockOption) *MockSource {
	m := &MockSource{cfg: cfg, out: make(chan Chunk)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}
	m.running = true
	m.out = make(chan Chunk, 8)
	m.stop = make(chan struct{})
	go m.generate(ctx, m.out, m.stop)
	return nil
}

// generate owns the out channel and closes it on the way out, so a
// send can never race the shutdown.
func (m *MockSource) generate(ctx context.Context, out chan Chunk, stop chan struct{}) {
	defer close(out)
	ticker := time.NewTicker(m.cfg.FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			select {
			case out <- m.frame():
			default:
			}
		}
	}
}

func (m *MockSource) frame() Chunk {
	samples := make([]int16, m.cfg.FrameSamples()*m.cfg.Channels)
	if m.freq > 0 {
		m.mu.Lock()
		for i := 0; i < m.cfg.FrameSamples(); i++ {
			v := int16(m.amp * math.Sin(2*math.Pi*m.freq*m.phase/float64(m.cfg.SampleRate)) * math.MaxInt16)
			for ch := 0; ch < m.cfg.Channels; ch++ {
				samples[i*m.cfg.Channels+ch] = v
			}
			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
		m.mu.Unlock()
	}
	return Chunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stop)
	return nil
}

func (m *MockSource) Stream() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// MockSink swallows audio and counts what it was given.
type MockSink struct {
	cfg Config

	mu      sync.Mutex
	running bool
	closed  bool

	ChunksWritten  int
	SamplesWritten int
}

// NewMockSink builds a stopped mock sink.
func NewMockSink(cfg Config) *MockSink {
	return &MockSink{cfg: cfg}
}

func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.running = true
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

func (m *MockSink) Write(ctx context.Context, chunk Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.running {
		return ErrStopped
	}
	m.ChunksWritten++
	m.SamplesWritten += len(chunk.Samples)
	return nil
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}
