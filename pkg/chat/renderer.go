// Package chat assembles streamed reply chunks into display messages.
// Inline latency annotations are stripped and recorded before text
// reaches the transcript.
package chat

import (
	"sync"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role Role
	Text string
}

// Renderer accumulates streamed chunks into messages. A user message
// always opens a fresh assistant bubble, so a late chunk never lands in
// a stale reply.
type Renderer struct {
	mu       sync.Mutex
	messages []Message
	// open tracks whether the last message is an assistant bubble
	// still accepting chunks.
	open bool

	metrics  *MetricsCollector
	onUpdate func([]Message)
}

// NewRenderer creates a renderer recording latencies into the given
// collector. A nil collector disables latency recording.
func NewRenderer(metrics *MetricsCollector) *Renderer {
	return &Renderer{metrics: metrics}
}

// OnUpdate sets a callback that fires with the full transcript after
// each append.
func (r *Renderer) OnUpdate(fn func([]Message)) {
	r.mu.Lock()
	r.onUpdate = fn
	r.mu.Unlock()
}

// AppendUserMessage records the user's message and starts a new reply
// bubble for the chunks that follow.
func (r *Renderer) AppendUserMessage(text string) {
	if r.metrics != nil {
		r.metrics.BeginTurn()
	}

	r.mu.Lock()
	r.messages = append(r.messages, Message{Role: RoleUser, Text: text})
	r.open = false
	fn := r.onUpdate
	transcript := r.snapshotLocked()
	r.mu.Unlock()

	if fn != nil {
		fn(transcript)
	}
}

// AppendChunk adds streamed reply text to the current assistant bubble,
// stripping latency tags first. Tag-free text passes through unchanged.
func (r *Renderer) AppendChunk(text string) {
	clean, latencies := StripLatencyTags(text)
	if r.metrics != nil {
		for _, l := range latencies {
			r.metrics.Record(l)
		}
	}
	if clean == "" {
		return
	}

	r.mu.Lock()
	if !r.open || len(r.messages) == 0 {
		r.messages = append(r.messages, Message{Role: RoleAssistant})
		r.open = true
	}
	r.messages[len(r.messages)-1].Text += clean
	fn := r.onUpdate
	transcript := r.snapshotLocked()
	r.mu.Unlock()

	if fn != nil {
		fn(transcript)
	}
}

// Messages returns the transcript with the cleanup pass applied to
// assistant messages. Raw text stays untouched internally.
func (r *Renderer) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.messages))
	for i, m := range r.messages {
		if m.Role == RoleAssistant {
			m.Text = CleanupText(m.Text)
		}
		out[i] = m
	}
	return out
}

// CurrentReply returns the raw text of the open assistant bubble, or
// empty if none is open.
func (r *Renderer) CurrentReply() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.open || len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1].Text
}

func (r *Renderer) snapshotLocked() []Message {
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
