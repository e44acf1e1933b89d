package httpapi

import (
	"net/http"
	"strings"
)

type uiSettingsResponse struct {
	AvatarName          string `json:"avatar_name"`
	VoiceID             string `json:"voice_id,omitempty"`
	Language            string `json:"language"`
	Quality             string `json:"quality"`
	ActivityIdleSeconds int    `json:"activity_idle_timeout"`
	VoiceChatAvailable  bool   `json:"voice_chat_available"`
	StepDialogAvailable bool   `json:"step_dialog_available"`
	HistoryAvailable    bool   `json:"history_available"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		AvatarName:          s.cfg.HeyGenAvatarName,
		VoiceID:             s.cfg.HeyGenVoiceID,
		Language:            s.cfg.HeyGenLanguage,
		Quality:             s.cfg.HeyGenQuality,
		ActivityIdleSeconds: s.cfg.HeyGenIdleTimeoutSeconds,
		VoiceChatAvailable:  strings.TrimSpace(s.cfg.N8NWebhookURL) != "",
		StepDialogAvailable: strings.TrimSpace(s.cfg.N8NDialogURL) != "",
		HistoryAvailable:    s.archive != nil,
	})
}
