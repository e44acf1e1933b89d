package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the avatar orchestration service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	UpstreamTimeout          time.Duration
	NotifyTimeout            time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// AvatarProvider selects the avatar client backend: heygen|mock.
	AvatarProvider string

	HeyGenAPIKey     string
	HeyGenBaseAPIURL string
	HeyGenAvatarName string
	HeyGenVoiceID    string
	HeyGenLanguage   string
	HeyGenQuality    string
	// HeyGenIdleTimeoutSeconds is the avatar's activity idle timeout; 0 keeps the provider default.
	HeyGenIdleTimeoutSeconds int

	// N8NWebhookURL serves whole dialogue scripts.
	N8NWebhookURL string
	// N8NDialogURL serves one dialogue line per step.
	N8NDialogURL string
	// N8NNotifyURL receives transcript notifications and reply requests.
	N8NNotifyURL string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "avatar"),
		AllowAnyOrigin:   false,
		AvatarProvider:   envOrDefault("AVATAR_PROVIDER", "heygen"),
		HeyGenAPIKey:     stringsTrimSpace("HEYGEN_API_KEY"),
		// The browser build used NEXT_PUBLIC_BASE_API_URL; keep it as a fallback.
		HeyGenBaseAPIURL: firstNonEmpty(stringsTrimSpace("HEYGEN_BASE_API_URL"), stringsTrimSpace("NEXT_PUBLIC_BASE_API_URL")),
		HeyGenAvatarName: envOrDefault("HEYGEN_AVATAR_NAME", "Wayne_20240711"),
		HeyGenVoiceID:    stringsTrimSpace("HEYGEN_VOICE_ID"),
		HeyGenLanguage:   envOrDefault("HEYGEN_LANGUAGE", "en"),
		HeyGenQuality:    envOrDefault("HEYGEN_QUALITY", "low"),
		N8NWebhookURL:    stringsTrimSpace("N8N_WEBHOOK_URL"),
		N8NDialogURL:     stringsTrimSpace("N8N_DIALOG_URL"),
		N8NNotifyURL: firstNonEmpty(
			stringsTrimSpace("N8N_NOTIFY_URL"),
			stringsTrimSpace("NEXT_PUBLIC_N8N_WEBHOOK_URL"),
			stringsTrimSpace("N8N_WEBHOOK_URL"),
		),
		DatabaseURL:              stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 10 * time.Minute,
		UpstreamTimeout:          30 * time.Second,
		NotifyTimeout:            10 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UpstreamTimeout, err = durationFromEnv("APP_UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.NotifyTimeout, err = durationFromEnv("N8N_NOTIFY_TIMEOUT", cfg.NotifyTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HeyGenIdleTimeoutSeconds, err = intFromEnv("HEYGEN_IDLE_TIMEOUT_SECONDS", cfg.HeyGenIdleTimeoutSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.AvatarProvider = strings.ToLower(strings.TrimSpace(cfg.AvatarProvider))
	switch cfg.AvatarProvider {
	case "heygen", "mock":
	default:
		return Config{}, fmt.Errorf("invalid AVATAR_PROVIDER: %q (expected heygen|mock)", cfg.AvatarProvider)
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.HeyGenIdleTimeoutSeconds < 0 {
		return Config{}, fmt.Errorf("HEYGEN_IDLE_TIMEOUT_SECONDS must be >= 0")
	}
	if cfg.UpstreamTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_UPSTREAM_TIMEOUT must be positive")
	}
	if cfg.NotifyTimeout <= 0 {
		return Config{}, fmt.Errorf("N8N_NOTIFY_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
