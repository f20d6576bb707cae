// Package app wires the avatar client together: backend endpoints,
// transport channel with poll fallback, speech capture, the session
// state machine, and the chat renderer.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/config"
	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/audioio"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/backend"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/chat"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/session"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/speech"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/transport"
)

// App is the avatar client orchestrator. It owns every component and
// their lifecycle.
type App struct {
	cfg config.Config

	client   *backend.Client
	capture  *speech.Capture
	sink     audioio.Sink
	metrics  *chat.MetricsCollector
	renderer *chat.Renderer

	sess   *session.Session
	sessMu sync.Mutex

	runCtx context.Context
}

// New builds the client components from configuration.
func New(cfg config.Config) (*App, error) {
	client, err := backend.NewClient(cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		client:  client,
		metrics: chat.NewMetricsCollector(),
	}
	a.renderer = chat.NewRenderer(a.metrics)

	tokens := func(ctx context.Context) (speech.Token, error) {
		t, err := client.SpeechToken(ctx)
		if err != nil {
			return speech.Token{}, err
		}
		return speech.Token{Value: t.Token, Region: t.Region}, nil
	}
	recognizer := speech.NewStreamRecognizer(tokens, cfg.RecognitionLanguage)
	recognizer.OnError(func(err error) {
		log.Warn("speech recognition", "error", err)
	})

	source, err := audioio.NewSource(audioio.CaptureConfig())
	if err != nil {
		// No microphone is fine, the session runs text-only.
		log.Warn("audio source unavailable, voice input disabled", "error", err)
	} else {
		a.capture = speech.NewCapture(source, recognizer)
	}
	recognizer.OnUtterance(a.handleUtterance)

	sink, err := audioio.NewSink(audioio.PlaybackConfig())
	if err != nil {
		log.Warn("audio sink unavailable, avatar audio muted", "error", err)
	} else if err := sink.Start(context.Background()); err != nil {
		log.Warn("audio sink start failed, avatar audio muted", "error", err)
	} else {
		a.sink = sink
	}

	return a, nil
}

// Renderer exposes the chat transcript.
func (a *App) Renderer() *chat.Renderer { return a.renderer }

// Metrics exposes the per-turn latency collector.
func (a *App) Metrics() *chat.MetricsCollector { return a.metrics }

// Run starts a session and serves the interactive prompt until ctx is
// cancelled. The persistent socket channel is tried first; when its
// handshake fails the session is rebuilt on the polling fallback.
func (a *App) Run(ctx context.Context) error {
	a.runCtx = ctx

	if h, err := a.client.Health(ctx); err != nil {
		log.Warn("server health check failed", "error", err)
	} else {
		log.Info("server healthy", "service", h.Service)
	}

	sess, err := a.startSession(ctx, a.socketChannel())
	if errors.Is(err, transport.ErrHandshakeFailed) {
		log.Warn("socket handshake failed, falling back to status polling")
		sess, err = a.startSession(ctx, a.pollChannel())
	}
	if err != nil {
		return err
	}
	a.sessMu.Lock()
	a.sess = sess
	a.sessMu.Unlock()

	fmt.Println("Connected. Type a message, or just talk.")
	go a.promptLoop(ctx)

	<-ctx.Done()
	return nil
}

// Shutdown closes the session and notifies the server.
func (a *App) Shutdown() {
	a.sessMu.Lock()
	sess := a.sess
	a.sessMu.Unlock()
	if sess != nil {
		if err := sess.Close(context.Background()); err != nil {
			log.Warn("session close", "error", err)
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			log.Warn("audio sink close", "error", err)
		}
	}
}

func (a *App) startSession(ctx context.Context, channel transport.Channel) (*session.Session, error) {
	dial := session.AvatarDialer(a.client, backend.AvatarOptions{
		Character: a.cfg.AvatarCharacter,
		Style:     a.cfg.AvatarStyle,
		Voice:     a.cfg.TTSVoice,
	}, a.sink)

	var capture session.Capture
	if a.capture != nil {
		capture = a.capture
	}

	sess, err := session.New(
		session.Config{AutoReconnect: a.cfg.AutoReconnect},
		channel, dial, capture,
		session.WithCloseNotifier(a.client.DisconnectAvatar),
		session.WithStateListener(func(st session.State) {
			log.Info("session state", "state", st.String())
		}),
		session.WithErrorListener(func(err error) {
			fmt.Fprintf(os.Stderr, "connection lost: %v (send a message to retry)\n", err)
		}),
		session.WithEventListener(a.handleChatEvent),
	)
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

func (a *App) socketChannel() transport.Channel {
	return transport.NewSocketChannel(wsEndpoint(a.cfg.ServerURL))
}

func (a *App) pollChannel() transport.Channel {
	return transport.NewPollChannel(a.client.SynthesizerConnected, nil)
}

// wsEndpoint maps the HTTP server URL to its websocket endpoint.
func wsEndpoint(serverURL string) string {
	ws := serverURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws/chat"
}

// handleChatEvent receives chat-bearing transport events.
func (a *App) handleChatEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.KindUserMessage:
		a.renderer.AppendUserMessage(ev.Text)
	case transport.KindChatChunk:
		a.renderer.AppendChunk(ev.Text)
		clean, _ := chat.StripLatencyTags(ev.Text)
		fmt.Print(clean)
	}
}

// handleUtterance routes a recognized utterance into the chat flow.
func (a *App) handleUtterance(u speech.Utterance) {
	fmt.Printf("\nyou (voice): %s\n", u.Text)
	a.sendQuery(u.Text)
}

// promptLoop reads typed messages from stdin.
func (a *App) promptLoop(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		a.sendQuery(text)
	}
}

// sendQuery sends one user query and streams the reply into the
// renderer.
func (a *App) sendQuery(text string) {
	a.sessMu.Lock()
	sess := a.sess
	a.sessMu.Unlock()
	if sess == nil {
		return
	}
	sess.Touch()
	a.renderer.AppendUserMessage(text)

	stream, err := a.client.StreamChat(a.runCtx, sess.ID(), text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat request failed: %v\n", err)
		return
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		a.renderer.AppendChunk(chunk)
		clean, _ := chat.StripLatencyTags(chunk)
		fmt.Print(clean)
	}
	fmt.Println()
}
