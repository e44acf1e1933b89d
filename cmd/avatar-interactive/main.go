package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
	"github.com/ppvaladez/avatar-interactive/internal/config"
	"github.com/ppvaladez/avatar-interactive/internal/httpapi"
	"github.com/ppvaladez/avatar-interactive/internal/observability"
	"github.com/ppvaladez/avatar-interactive/internal/session"
	"github.com/ppvaladez/avatar-interactive/internal/transcript"
	"github.com/ppvaladez/avatar-interactive/internal/upstream"
	"github.com/ppvaladez/avatar-interactive/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	archive, err := transcript.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("transcript store init failed: %v", err)
	}
	defer archive.Close()

	httpClient := upstream.NewClient(cfg.UpstreamTimeout)
	tokens := avatar.NewTokenIssuer(cfg.HeyGenAPIKey, cfg.HeyGenBaseAPIURL, httpClient)
	hooks := webhook.NewClient(webhook.Config{
		DialogueURL: cfg.N8NWebhookURL,
		StepURL:     cfg.N8NDialogURL,
		NotifyURL:   cfg.N8NNotifyURL,
	}, httpClient)
	notifier := webhook.NewNotifier(cfg.N8NNotifyURL, httpClient, webhook.NotifierOptions{
		Timeout: cfg.NotifyTimeout,
		Metrics: metrics,
	})

	var factory avatar.Factory
	switch strings.ToLower(cfg.AvatarProvider) {
	case "mock":
		factory = avatar.MockFactory()
		log.Printf("avatar provider: mock")
	default:
		if cfg.HeyGenAPIKey == "" || cfg.HeyGenBaseAPIURL == "" {
			log.Printf("avatar provider: heygen (token proxy not configured: set HEYGEN_API_KEY and HEYGEN_BASE_API_URL)")
		} else {
			log.Printf("avatar provider: heygen (%s)", cfg.HeyGenBaseAPIURL)
		}
		factory = avatar.HeyGenFactory(cfg.HeyGenBaseAPIURL, httpClient)
	}

	sessions := session.NewManager(session.Deps{
		Factory:  factory,
		Scripts:  hooks,
		Steps:    hooks,
		Notifier: notifier,
		Archive:  archive,
		Metrics:  metrics,
	}, cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		log.Printf("session expired id=%s", s.ID)
		metrics.ObserveSessionEvent("expired")
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	api := httpapi.New(cfg, sessions, httpapi.Deps{
		Tokens:   tokens,
		Dialogue: hooks,
		Archive:  archive,
		Logf:     log.Printf,
	}, metrics)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sessions.StartJanitor(runCtx, 5*time.Second)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
			_ = httpServer.Close()
		}
		sessions.Close(shutdownCtx)
		notifier.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("listen error: %v", err)
	}
	log.Printf("shutdown complete")
}
