// avatar is the interactive avatar chat client: speech in, streamed
// chat and talking-avatar video out, with guarded auto-reconnect.
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
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/app"
)

func main() {
	cfg := parseFlags()
	log.Init(cfg.LogLevel)

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags loads .env, environment configuration, and flag overrides.
func parseFlags() config.Config {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	server := flag.String("server", "", "avatar server base URL (overrides AVATAR_SERVER_URL)")
	character := flag.String("character", "", "avatar character")
	style := flag.String("style", "", "avatar style")
	voice := flag.String("voice", "", "TTS voice name")
	language := flag.String("language", "", "speech recognition locale")
	noReconnect := flag.Bool("no-reconnect", false, "disable automatic reconnection")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	flag.Parse()

	if *server != "" {
		cfg.ServerURL = *server
	}
	if *character != "" {
		cfg.AvatarCharacter = *character
	}
	if *style != "" {
		cfg.AvatarStyle = *style
	}
	if *voice != "" {
		cfg.TTSVoice = *voice
	}
	if *language != "" {
		cfg.RecognitionLanguage = *language
	}
	if *noReconnect {
		cfg.AutoReconnect = false
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg
}
