package speech

import (
	"context"
	"sync"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/audioio"
)

// Capture pumps microphone audio through the resampler into a
// recognizer. A failed or denied audio source degrades the session to
// text-only input rather than aborting it.
type Capture struct {
	source     audioio.Source
	recognizer Recognizer

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewCapture wires an audio source to a recognizer.
func NewCapture(source audioio.Source, recognizer Recognizer) *Capture {
	return &Capture{source: source, recognizer: recognizer}
}

// Start begins capture and recognition. Source failure is logged and
// reported as a degraded (voiceless) start, not an error.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.recognizer.Start(pumpCtx); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		cancel()
		return err
	}

	if err := c.source.Start(pumpCtx); err != nil {
		// Microphone denied or missing: voice input is unavailable but
		// the session stays alive for typed input.
		log.Warn("audio capture unavailable, continuing without voice", "error", err)
		return nil
	}

	go c.pump(pumpCtx)
	return nil
}

// Stop halts capture and the recognition session. Safe to call twice.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	if err := c.source.Stop(); err != nil {
		log.Debug("audio source stop", "error", err)
	}
	return c.recognizer.Stop()
}

// pump reads chunks, resamples them to the recognizer's rate, and
// forwards the PCM.
func (c *Capture) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-c.source.Stream():
			if !ok {
				return
			}
			samples := chunk.Samples
			if chunk.SampleRate != recognizerSampleRate {
				samples = audioio.Resample(samples, chunk.SampleRate, recognizerSampleRate)
			}
			frame := audioio.Chunk{
				Samples:    samples,
				SampleRate: recognizerSampleRate,
				Channels:   chunk.Channels,
			}
			if err := c.recognizer.SendAudio(frame.Bytes()); err != nil {
				log.Debug("recognizer send failed", "error", err)
			}
		}
	}
}
