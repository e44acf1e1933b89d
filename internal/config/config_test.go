package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.AvatarProvider != "heygen" {
		t.Fatalf("AvatarProvider = %q, want %q", cfg.AvatarProvider, "heygen")
	}
	if cfg.HeyGenAPIKey != "" || cfg.HeyGenBaseAPIURL != "" {
		t.Fatalf("HeyGen credentials should default empty: %+v", cfg)
	}
	if cfg.SessionInactivityTimeout != 10*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want %v", cfg.SessionInactivityTimeout, 10*time.Minute)
	}
}

func TestLoadFallsBackToPublicBaseURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("NEXT_PUBLIC_BASE_API_URL", "https://api.heygen.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HeyGenBaseAPIURL != "https://api.heygen.test" {
		t.Fatalf("HeyGenBaseAPIURL = %q, want fallback value", cfg.HeyGenBaseAPIURL)
	}

	t.Setenv("HEYGEN_BASE_API_URL", "https://explicit.heygen.test")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HeyGenBaseAPIURL != "https://explicit.heygen.test" {
		t.Fatalf("HeyGenBaseAPIURL = %q, want explicit value", cfg.HeyGenBaseAPIURL)
	}
}

func TestLoadNotifyURLPrecedence(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("N8N_WEBHOOK_URL", "http://n8n.test/dialogue")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.N8NNotifyURL != "http://n8n.test/dialogue" {
		t.Fatalf("N8NNotifyURL = %q, want webhook fallback", cfg.N8NNotifyURL)
	}

	t.Setenv("N8N_NOTIFY_URL", "http://n8n.test/notify")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.N8NNotifyURL != "http://n8n.test/notify" {
		t.Fatalf("N8NNotifyURL = %q, want explicit value", cfg.N8NNotifyURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AVATAR_PROVIDER":                "livekit",
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"APP_UPSTREAM_TIMEOUT":           "soon",
		"APP_ALLOW_ANY_ORIGIN":           "maybe",
		"HEYGEN_IDLE_TIMEOUT_SECONDS":    "-5",
	}
	for key, value := range cases {
		setCoreEnvEmpty(t)
		t.Setenv(key, value)
		if _, err := Load(); err == nil {
			t.Fatalf("Load() with %s=%q expected error", key, value)
		}
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_UPSTREAM_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"AVATAR_PROVIDER",
		"HEYGEN_API_KEY",
		"HEYGEN_BASE_API_URL",
		"NEXT_PUBLIC_BASE_API_URL",
		"HEYGEN_AVATAR_NAME",
		"HEYGEN_VOICE_ID",
		"HEYGEN_LANGUAGE",
		"HEYGEN_QUALITY",
		"HEYGEN_IDLE_TIMEOUT_SECONDS",
		"N8N_WEBHOOK_URL",
		"N8N_DIALOG_URL",
		"N8N_NOTIFY_URL",
		"N8N_NOTIFY_TIMEOUT",
		"NEXT_PUBLIC_N8N_WEBHOOK_URL",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
