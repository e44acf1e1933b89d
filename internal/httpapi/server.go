package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ppvaladez/avatar-interactive/internal/config"
	"github.com/ppvaladez/avatar-interactive/internal/observability"
	"github.com/ppvaladez/avatar-interactive/internal/session"
	"github.com/ppvaladez/avatar-interactive/internal/transcript"
	"github.com/ppvaladez/avatar-interactive/internal/webhook"
)

// TokenIssuer mints short-lived avatar streaming tokens.
type TokenIssuer interface {
	CreateToken(ctx context.Context) (string, error)
}

// DialogueWebhook is the dialogue side of the n8n workflow.
type DialogueWebhook interface {
	FetchDialogue(ctx context.Context) (webhook.RawResponse, error)
	FetchScript(ctx context.Context) ([]byte, error)
	FetchStep(ctx context.Context, step string) (string, error)
}

// Deps are the server's collaborators. Any of them may be nil.
type Deps struct {
	Tokens   TokenIssuer
	Dialogue DialogueWebhook
	Archive  transcript.Store
	Logf     func(format string, args ...any)
}

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	tokens   TokenIssuer
	dialogue DialogueWebhook
	archive  transcript.Store
	metrics  *observability.Metrics
	logf     func(format string, args ...any)
	upgrader websocket.Upgrader
	static   http.Handler
}

func New(cfg config.Config, sessions *session.Manager, deps Deps, metrics *observability.Metrics) *Server {
	logf := deps.Logf
	if logf == nil {
		logf = discardf
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		tokens:   deps.Tokens,
		dialogue: deps.Dialogue,
		archive:  deps.Archive,
		metrics:  metrics,
		logf:     logf,
		static:   newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive a session unless configured otherwise.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func discardf(string, ...any) {}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/get-access-token", s.handleGetAccessToken)
	r.Get("/api/get-n8n-dialogue", s.handleGetDialogue)
	r.Get("/api/n8n-dialog", s.handleGetDialogStep)

	r.Get("/v1/onboarding/status", s.handleOnboardingStatus)
	r.Get("/v1/ui/settings", s.handleUISettings)
	r.Get("/v1/dialogue/scripts", s.handleListScripts)

	r.Post("/v1/avatar/session", s.handleCreateSession)
	r.Get("/v1/avatar/session/ws", s.handleSessionWS)
	r.Route("/v1/avatar/session/{id}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleDeleteSession)
		r.Post("/start", s.handleStartSession)
		r.Post("/stop", s.handleStopSession)
		r.Post("/voice-chat/start", s.handleStartVoiceChat)
		r.Post("/voice-chat/stop", s.handleStopVoiceChat)
		r.Post("/mute", s.handleMute)
		r.Post("/unmute", s.handleUnmute)
		r.Post("/messages", s.handleSendMessage)
		r.Post("/dialogue/play", s.handlePlayDialogue)
		r.Post("/dialogue/load", s.handleLoadDialogue)
		r.Post("/dialog/next", s.handleDialogNext)
		r.Post("/dialog/reset", s.handleDialogReset)
		r.Get("/history", s.handleHistory)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"avatar_provider": s.cfg.AvatarProvider,
		"archive_mode":    s.archiveMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
		"archive_mode":    s.archiveMode(),
	})
}

func (s *Server) archiveMode() string {
	switch s.archive.(type) {
	case nil:
		return "disabled"
	case *transcript.PostgresStore:
		return "postgres"
	default:
		return "in-memory"
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
