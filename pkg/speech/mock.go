package speech

import (
	"context"
	"sync"
)

// Mock is a mock Recognizer for testing.
type Mock struct {
	mu sync.Mutex

	started     bool
	onUtterance func(Utterance)
	onError     func(error)

	// Configurable behavior
	StartFunc func(ctx context.Context) error
	StopFunc  func() error

	// Captured calls for assertions
	AudioSent  [][]byte
	StartCalls int
	StopCalls  int
}

// NewMock creates a new mock recognizer.
func NewMock() *Mock {
	return &Mock{}
}

// Start implements Recognizer.
func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	m.StartCalls++
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

// Stop implements Recognizer.
func (m *Mock) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	m.started = false
	m.mu.Unlock()
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

// SendAudio implements Recognizer.
func (m *Mock) SendAudio(pcm []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return ErrNotStarted
	}
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	m.AudioSent = append(m.AudioSent, buf)
	return nil
}

// OnUtterance implements Recognizer.
func (m *Mock) OnUtterance(fn func(Utterance)) {
	m.mu.Lock()
	m.onUtterance = fn
	m.mu.Unlock()
}

// OnError implements Recognizer.
func (m *Mock) OnError(fn func(error)) {
	m.mu.Lock()
	m.onError = fn
	m.mu.Unlock()
}

// EmitUtterance delivers an utterance to the registered handler.
func (m *Mock) EmitUtterance(u Utterance) {
	m.mu.Lock()
	fn := m.onUtterance
	m.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

// EmitError delivers an error to the registered handler.
func (m *Mock) EmitError(err error) {
	m.mu.Lock()
	fn := m.onError
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
