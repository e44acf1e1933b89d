package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
	"github.com/ppvaladez/avatar-interactive/internal/policy"
	"github.com/ppvaladez/avatar-interactive/internal/webhook"
)

const (
	msgTokenFailed       = "Failed to retrieve access token"
	msgDialogueFailed    = "Failed to fetch dialogue"
	msgDialogueUpstream  = "Failed to fetch from n8n"
	msgDialogURLMissing  = "N8N_DIALOG_URL is not configured"
	msgDialogStepFailed  = "Failed to fetch dialog"
	routeToken           = "get_access_token"
	routeDialogue        = "get_n8n_dialogue"
	routeDialogStep      = "n8n_dialog"
	outcomeOK            = "ok"
	outcomeError         = "error"
	outcomeUpstreamError = "upstream_error"
)

// handleGetAccessToken exchanges the server-held API key for a streaming
// token. Failures never echo the credential or the upstream diagnostic.
func (s *Server) handleGetAccessToken(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		s.logf("token proxy: %v", avatar.ErrMissingAPIKey)
		s.metrics.ObserveProxy(routeToken, outcomeError)
		respondText(w, http.StatusInternalServerError, msgTokenFailed)
		return
	}
	token, err := s.tokens.CreateToken(r.Context())
	if err != nil {
		s.logf("token proxy: create token failed: %s", policy.RedactSecrets(err.Error(), s.cfg.HeyGenAPIKey))
		s.metrics.ObserveProxy(routeToken, outcomeError)
		respondText(w, http.StatusInternalServerError, msgTokenFailed)
		return
	}
	s.metrics.ObserveProxy(routeToken, outcomeOK)
	respondText(w, http.StatusOK, token)
}

// handleGetDialogue relays the dialogue webhook's answer.
func (s *Server) handleGetDialogue(w http.ResponseWriter, r *http.Request) {
	if s.dialogue == nil {
		s.metrics.ObserveProxy(routeDialogue, outcomeError)
		respondText(w, http.StatusInternalServerError, msgDialogueFailed)
		return
	}
	raw, err := s.dialogue.FetchDialogue(r.Context())
	if err != nil {
		s.logf("dialogue proxy: %v", err)
		s.metrics.ObserveProxy(routeDialogue, outcomeError)
		respondText(w, http.StatusInternalServerError, msgDialogueFailed)
		return
	}
	if !raw.OK() {
		s.metrics.ObserveProxy(routeDialogue, outcomeUpstreamError)
		body := string(raw.Body)
		if strings.TrimSpace(body) == "" {
			body = msgDialogueUpstream
		}
		respondText(w, raw.Status, body)
		return
	}
	s.metrics.ObserveProxy(routeDialogue, outcomeOK)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw.Body)
}

// handleGetDialogStep returns one line of the stepped dialogue.
func (s *Server) handleGetDialogStep(w http.ResponseWriter, r *http.Request) {
	if s.dialogue == nil {
		s.metrics.ObserveProxy(routeDialogStep, outcomeError)
		respondText(w, http.StatusInternalServerError, msgDialogURLMissing)
		return
	}
	step := r.URL.Query().Get("step")
	if step == "" {
		step = "0"
	}
	msg, err := s.dialogue.FetchStep(r.Context(), step)
	if errors.Is(err, webhook.ErrNotConfigured) {
		s.metrics.ObserveProxy(routeDialogStep, outcomeError)
		respondText(w, http.StatusInternalServerError, msgDialogURLMissing)
		return
	}
	if err != nil {
		s.logf("dialog step proxy: step=%s: %v", step, err)
		s.metrics.ObserveProxy(routeDialogStep, outcomeError)
		respondText(w, http.StatusInternalServerError, msgDialogStepFailed)
		return
	}
	s.metrics.ObserveProxy(routeDialogStep, outcomeOK)
	respondJSON(w, http.StatusOK, map[string]string{"message": msg})
}
