package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AVATAR_SERVER_URL", "")
	t.Setenv("AVATAR_AUTO_RECONNECT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.ServerURL != DefaultServerURL {
		t.Errorf("expected default server URL %s, got %s", DefaultServerURL, cfg.ServerURL)
	}
	if cfg.AvatarCharacter != DefaultAvatarChar {
		t.Errorf("expected default character %s, got %s", DefaultAvatarChar, cfg.AvatarCharacter)
	}
	if !cfg.AutoReconnect {
		t.Error("expected auto-reconnect enabled by default")
	}
}

func TestLoadTrimsTrailingSlash(t *testing.T) {
	t.Setenv("AVATAR_SERVER_URL", "https://demo.example.com/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerURL != "https://demo.example.com" {
		t.Errorf("expected trailing slash removed, got %s", cfg.ServerURL)
	}
}

func TestLoadRejectsBadBool(t *testing.T) {
	t.Setenv("AVATAR_AUTO_RECONNECT", "maybe")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid AVATAR_AUTO_RECONNECT")
	}
}
