package transport

import (
	"context"
	"sync"
)

// Mock is a mock Channel implementation for testing.
type Mock struct {
	mu sync.Mutex

	connected bool
	sessionID string
	onEvent   Handler

	// Configurable behavior
	ConnectFunc    func(ctx context.Context, sessionID string) error
	SendFunc       func(ev Event) error
	DisconnectFunc func() error

	// Captured calls for assertions
	Sent            []Event
	ConnectCalls    int
	DisconnectCalls int
}

// NewMock creates a new mock channel.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Channel.
func (m *Mock) Connect(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	m.ConnectCalls++
	m.mu.Unlock()
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx, sessionID)
	}
	m.mu.Lock()
	m.connected = true
	m.sessionID = sessionID
	m.mu.Unlock()
	return nil
}

// Send implements Channel.
func (m *Mock) Send(ev Event) error {
	if m.SendFunc != nil {
		return m.SendFunc(ev)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.Sent = append(m.Sent, ev)
	return nil
}

// OnEvent implements Channel.
func (m *Mock) OnEvent(fn Handler) {
	m.mu.Lock()
	m.onEvent = fn
	m.mu.Unlock()
}

// Disconnect implements Channel.
func (m *Mock) Disconnect() error {
	m.mu.Lock()
	m.DisconnectCalls++
	m.connected = false
	m.mu.Unlock()
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc()
	}
	return nil
}

// Connected implements Channel.
func (m *Mock) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Emit delivers an event to the registered handler, simulating an
// inbound frame. Events for a different session are dropped, matching
// the real channels.
func (m *Mock) Emit(ev Event) {
	m.mu.Lock()
	fn := m.onEvent
	sessionID := m.sessionID
	m.mu.Unlock()
	if fn == nil {
		return
	}
	if ev.SessionID != "" && sessionID != "" && ev.SessionID != sessionID {
		return
	}
	fn(ev)
}
