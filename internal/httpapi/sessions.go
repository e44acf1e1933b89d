package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
	"github.com/ppvaladez/avatar-interactive/internal/dialogue"
	"github.com/ppvaladez/avatar-interactive/internal/session"
)

const defaultHistoryLimit = 100

type voiceChatRequest struct {
	Muted *bool `json:"muted"`
}

type messageRequest struct {
	Text string `json:"text"`
}

type playRequest struct {
	Script string `json:"script"`
	Label  string `json:"label"`
}

type dialogStepResponse struct {
	Message string `json:"message"`
	Sent    bool   `json:"sent"`
	Step    int    `json:"step"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.sessions.Create(req.UserID)
	s.metrics.ObserveSessionEvent("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		SessionState:    sess.State.SessionState(),
		StartedAt:       sess.StartedAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

// lookup resolves the {id} URL param and marks the session active.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	sess.Touch()
	return sess, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	sess, err := s.sessions.Remove(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.refreshActive()
	s.metrics.ObserveSessionEvent("removed")
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req session.StartRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	_, err := sess.Controller.Start(r.Context(), s.avatarDefaults(req.Avatar), strings.TrimSpace(req.Token))
	s.refreshActive()
	if err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

// avatarDefaults fills unset avatar options from configuration.
func (s *Server) avatarDefaults(req avatar.StartAvatarRequest) avatar.StartAvatarRequest {
	if strings.TrimSpace(req.AvatarName) == "" {
		req.AvatarName = s.cfg.HeyGenAvatarName
	}
	if req.Quality == "" {
		req.Quality = s.cfg.HeyGenQuality
	}
	if req.Language == "" {
		req.Language = s.cfg.HeyGenLanguage
	}
	if req.Voice == nil && s.cfg.HeyGenVoiceID != "" {
		req.Voice = &avatar.VoiceSetting{VoiceID: s.cfg.HeyGenVoiceID}
	}
	if req.ActivityIdleTimeout == 0 {
		req.ActivityIdleTimeout = s.cfg.HeyGenIdleTimeoutSeconds
	}
	return req
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	err := sess.Controller.Stop(r.Context())
	s.refreshActive()
	if err != nil {
		// The session is INACTIVE regardless; report the provider failure.
		s.logf("session %s: %v", sess.ID, err)
	}
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleStartVoiceChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req voiceChatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if !s.requireClient(w, sess) {
		return
	}
	muted := true
	if req.Muted != nil {
		muted = *req.Muted
	}
	sess.VoiceChat.Start(r.Context(), muted)
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleStopVoiceChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.VoiceChat.Stop(r.Context())
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.VoiceChat.Mute()
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleUnmute(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.VoiceChat.Unmute()
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"text\": ...}")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if err := sess.Controller.SendText(r.Context(), req.Text); err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.State.Snapshot())
}

func (s *Server) handlePlayDialogue(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req playRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "body must be {\"script\": ...} or {\"label\": ...}")
		return
	}
	script := req.Script
	if strings.TrimSpace(script) == "" && strings.TrimSpace(req.Label) != "" {
		entry, found := dialogue.Find(req.Label)
		if !found {
			respondError(w, http.StatusNotFound, "script_not_found", "no catalog script labelled "+req.Label)
			return
		}
		script = entry.Script
	}
	if !s.requireClient(w, sess) {
		return
	}
	// Playback runs to the end even if the caller goes away.
	if err := sess.Player.Play(context.WithoutCancel(r.Context()), script); err != nil {
		s.respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"played": len(dialogue.ParseLines(script)),
	})
}

func (s *Server) handleLoadDialogue(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.lookup(w, r); !ok {
		return
	}
	if s.dialogue == nil {
		respondError(w, http.StatusServiceUnavailable, "dialogue_unavailable", "dialogue webhook is not configured")
		return
	}
	body, err := s.dialogue.FetchScript(r.Context())
	if err != nil {
		s.logf("load dialogue failed: %v", err)
		respondError(w, http.StatusBadGateway, "dialogue_unavailable", msgDialogueFailed)
		return
	}
	script, err := dialogue.ParsePayload(body)
	if err != nil {
		respondError(w, http.StatusBadGateway, "invalid_dialogue", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, dialogue.Entry{Label: script.Label, Script: script.Text()})
}

func (s *Server) handleDialogNext(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	msg, sent := sess.Steps.LoadNext(r.Context())
	respondJSON(w, http.StatusOK, dialogStepResponse{Message: msg, Sent: sent, Step: sess.Steps.Step()})
}

func (s *Server) handleDialogReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	sess.Steps.Reset()
	respondJSON(w, http.StatusOK, dialogStepResponse{Step: sess.Steps.Step()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if s.archive == nil {
		respondJSON(w, http.StatusOK, map[string]any{"records": []any{}})
		return
	}
	sess.Flush()
	records, err := s.archive.Recent(r.Context(), sess.ID, defaultHistoryLimit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "archive_error", err.Error())
		return
	}
	if records == nil {
		respondJSON(w, http.StatusOK, map[string]any{"records": []any{}})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleListScripts(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"scripts": dialogue.Catalog})
}

func (s *Server) requireClient(w http.ResponseWriter, sess *session.Session) bool {
	if sess.Controller.Client() == nil {
		s.respondSessionError(w, session.ErrNotStarted)
		return false
	}
	return true
}

func (s *Server) respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		respondError(w, http.StatusConflict, "session_active", err.Error())
	case errors.Is(err, dialogue.ErrPlaying):
		respondError(w, http.StatusConflict, "dialogue_playing", err.Error())
	case errors.Is(err, session.ErrTokenRequired):
		respondError(w, http.StatusBadRequest, "token_required", err.Error())
	case errors.Is(err, session.ErrNotStarted):
		respondError(w, http.StatusConflict, "avatar_not_started", err.Error())
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, context.Canceled):
		respondError(w, http.StatusConflict, "start_cancelled", err.Error())
	default:
		s.logf("session request failed: %v", err)
		respondError(w, http.StatusBadGateway, "avatar_error", err.Error())
	}
}

func (s *Server) refreshActive() {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
}
