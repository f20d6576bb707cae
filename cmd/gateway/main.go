// gateway is the demo server dashboards talk to: it fronts the
// upstream avatar server with a health endpoint, the synthesizer
// status endpoint, and a per-session websocket chat relay.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/config"
	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/backend"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/chat"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/gateway"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	port := flag.String("port", cfg.GatewayPort, "listen port")
	server := flag.String("server", "", "upstream avatar server base URL (overrides AVATAR_SERVER_URL)")
	logLevel := flag.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.Parse()

	if *server != "" {
		cfg.ServerURL = *server
	}
	log.Init(*logLevel)

	upstream, err := backend.NewClient(cfg.ServerURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// User messages from subscribers go upstream; reply chunks stream
	// back to the session's subscribers.
	var srv *gateway.Server
	srv = gateway.NewServer(*port, upstream.SynthesizerConnected, func(sessionID, text string) {
		go relayChat(ctx, upstream, srv, sessionID, text)
	})

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(); err != nil {
			log.Warn("gateway shutdown", "error", err)
		}
	}()

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", err)
		os.Exit(1)
	}
}

// relayChat forwards one user message upstream and publishes the
// streamed reply chunks, latency tags stripped, to the session.
func relayChat(ctx context.Context, upstream *backend.Client, srv *gateway.Server, sessionID, text string) {
	if err := srv.Publish(gateway.Event{Type: "user_message", SessionID: sessionID, Text: text}); err != nil {
		log.Warn("publish user message", "error", err)
	}

	stream, err := upstream.StreamChat(ctx, sessionID, text)
	if err != nil {
		log.Error("upstream chat failed", "session", sessionID, "error", err)
		srv.Publish(gateway.Event{Type: "error", SessionID: sessionID, Text: err.Error()})
		return
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		clean, _ := chat.StripLatencyTags(chunk)
		if clean == "" {
			continue
		}
		if err := srv.Publish(gateway.Event{Type: "chat_chunk", SessionID: sessionID, Text: clean}); err != nil {
			log.Warn("publish chunk", "error", err)
		}
	}
	srv.Publish(gateway.Event{Type: "chat_done", SessionID: sessionID})
}
