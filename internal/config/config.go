// Package config provides configuration helpers for avatar commands.
// Values come from environment variables; a .env file is loaded by the
// command mains before Load is called.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults for local development.
const (
	DefaultServerURL   = "http://localhost:5000"
	DefaultGatewayPort = "5000"
	DefaultAvatarChar  = "lisa"
	DefaultAvatarStyle = "casual-sitting"
	DefaultVoice       = "en-US-AvaMultilingualNeural"
	DefaultLanguage    = "en-US"
)

// Config aggregates settings for the avatar client and gateway.
type Config struct {
	// ServerURL is the base URL of the backend that exposes the speech
	// token, ICE credential, avatar connect, chat and status endpoints.
	ServerURL string

	// GatewayPort is the listen port for cmd/gateway.
	GatewayPort string

	// Avatar selection, sent as headers on the connect request.
	AvatarCharacter string
	AvatarStyle     string
	TTSVoice        string

	// RecognitionLanguage is the speech-to-text language hint.
	RecognitionLanguage string

	// AutoReconnect enables automatic session reconnection after an
	// unexpected disconnect.
	AutoReconnect bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	autoReconnect, err := parseBoolEnv("AVATAR_AUTO_RECONNECT", true)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ServerURL:           getEnvOrDefault("AVATAR_SERVER_URL", DefaultServerURL),
		GatewayPort:         getEnvOrDefault("GATEWAY_PORT", DefaultGatewayPort),
		AvatarCharacter:     getEnvOrDefault("AVATAR_CHARACTER", DefaultAvatarChar),
		AvatarStyle:         getEnvOrDefault("AVATAR_STYLE", DefaultAvatarStyle),
		TTSVoice:            getEnvOrDefault("TTS_VOICE", DefaultVoice),
		RecognitionLanguage: getEnvOrDefault("STT_LOCALE", DefaultLanguage),
		AutoReconnect:       autoReconnect,
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
	}

	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
