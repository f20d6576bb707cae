package chat

import (
	"sync"
	"time"
)

// TurnMetrics holds the latency annotations extracted during one
// conversation turn.
type TurnMetrics struct {
	SpeechToText  time.Duration
	FirstToken    time.Duration
	FirstSentence time.Duration
}

// MetricsCollector records extracted latency values per turn. It is
// goroutine-safe; chunk handlers and probes may report concurrently.
type MetricsCollector struct {
	mu      sync.Mutex
	current TurnMetrics
	history []TurnMetrics

	onUpdate func(TurnMetrics)
}

// NewMetricsCollector creates a collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]TurnMetrics, 0, 100),
	}
}

// OnUpdate sets a callback that fires whenever a latency is recorded.
func (m *MetricsCollector) OnUpdate(fn func(TurnMetrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// BeginTurn archives the current turn and resets for the next one.
func (m *MetricsCollector) BeginTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != (TurnMetrics{}) {
		m.history = append(m.history, m.current)
	}
	m.current = TurnMetrics{}
}

// Record stores an extracted latency for the current turn.
func (m *MetricsCollector) Record(l Latency) {
	m.mu.Lock()
	switch l.Kind {
	case LatencySpeechToText:
		m.current.SpeechToText = l.Value
	case LatencyFirstToken:
		m.current.FirstToken = l.Value
	case LatencyFirstSentence:
		m.current.FirstSentence = l.Value
	}
	current := m.current
	fn := m.onUpdate
	m.mu.Unlock()

	if fn != nil {
		fn(current)
	}
}

// Current returns the in-progress turn's metrics.
func (m *MetricsCollector) Current() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns completed turns, oldest first.
func (m *MetricsCollector) History() []TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TurnMetrics, len(m.history))
	copy(out, m.history)
	return out
}

// Average returns mean latencies across completed turns. Zero values
// are excluded so missing annotations do not drag the mean down.
func (m *MetricsCollector) Average() TurnMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg TurnMetrics
	var sttN, ftN, fsN int
	for _, t := range m.history {
		if t.SpeechToText > 0 {
			avg.SpeechToText += t.SpeechToText
			sttN++
		}
		if t.FirstToken > 0 {
			avg.FirstToken += t.FirstToken
			ftN++
		}
		if t.FirstSentence > 0 {
			avg.FirstSentence += t.FirstSentence
			fsN++
		}
	}
	if sttN > 0 {
		avg.SpeechToText /= time.Duration(sttN)
	}
	if ftN > 0 {
		avg.FirstToken /= time.Duration(ftN)
	}
	if fsN > 0 {
		avg.FirstSentence /= time.Duration(fsN)
	}
	return avg
}
