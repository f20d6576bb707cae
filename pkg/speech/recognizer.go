package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
)

// recognitionResult is the JSON frame the streaming endpoint sends for
// each recognition event. Offset and Duration arrive in 100ns ticks.
type recognitionResult struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
}

// StreamRecognizer is a continuous recognizer over the vendor's secure
// websocket streaming endpoint, authenticated with a bearer token.
type StreamRecognizer struct {
	tokens   TokenProvider
	language string

	// endpointOverride replaces the region-derived URL, for tests.
	endpointOverride string

	mu          sync.Mutex
	conn        *websocket.Conn
	started     bool
	startedAt   time.Time
	onUtterance func(Utterance)
	onError     func(error)
}

// NewStreamRecognizer creates a recognizer for the given language, e.g.
// "en-US".
func NewStreamRecognizer(tokens TokenProvider, language string) *StreamRecognizer {
	return &StreamRecognizer{tokens: tokens, language: language}
}

// OnUtterance registers the utterance handler. Call before Start.
func (r *StreamRecognizer) OnUtterance(fn func(Utterance)) {
	r.mu.Lock()
	r.onUtterance = fn
	r.mu.Unlock()
}

// OnError registers the error handler. Call before Start.
func (r *StreamRecognizer) OnError(fn func(error)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// Start fetches a token and opens the streaming session.
func (r *StreamRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.mu.Unlock()

	if r.tokens == nil {
		return ErrNoToken
	}
	tok, err := r.tokens(ctx)
	if err != nil {
		return fmt.Errorf("speech: fetch token: %w", err)
	}

	endpoint := r.endpointOverride
	if endpoint == "" {
		endpoint = fmt.Sprintf(
			"wss://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1",
			tok.Region)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("speech: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("language", r.language)
	q.Set("format", "simple")
	u.RawQuery = q.Encode()

	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := map[string][]string{
		"Authorization": {"Bearer " + tok.Value},
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("speech: connect recognizer: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.started = true
	r.startedAt = time.Now()
	r.mu.Unlock()

	go r.readLoop()
	return nil
}

// SendAudio streams a PCM16 frame to the endpoint.
func (r *StreamRecognizer) SendAudio(pcm []byte) error {
	r.mu.Lock()
	conn, started := r.conn, r.started
	r.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	return conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Stop ends the session. Safe to call twice.
func (r *StreamRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false
	return r.conn.Close()
}

func (r *StreamRecognizer) readLoop() {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			started := r.started
			fn := r.onError
			r.mu.Unlock()
			if started && fn != nil {
				fn(fmt.Errorf("speech: stream closed: %w", err))
			}
			return
		}
		r.handleResult(data)
	}
}

// handleResult parses a recognition frame and dispatches finalized
// utterances. Interim hypotheses and silence are dropped.
func (r *StreamRecognizer) handleResult(data []byte) {
	var res recognitionResult
	if err := json.Unmarshal(data, &res); err != nil {
		log.Debug("discarding malformed recognition frame", "error", err)
		return
	}
	if res.RecognitionStatus != "Success" || res.DisplayText == "" {
		return
	}

	r.mu.Lock()
	fn := r.onUtterance
	startedAt := r.startedAt
	r.mu.Unlock()
	if fn == nil {
		return
	}

	fn(Utterance{
		Text:      res.DisplayText,
		StartedAt: startedAt,
		Offset:    time.Duration(res.Offset) * 100 * time.Nanosecond,
		Duration:  time.Duration(res.Duration) * 100 * time.Nanosecond,
	})
}
