package httpapi

import (
	"net/http"
	"net/url"
	"strings"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	AvatarProvider string            `json:"avatar_provider"`
	ArchiveMode    string            `json:"archive_mode"`
	Checks         []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, _ *http.Request) {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.AvatarProvider))
	checks := make([]onboardingCheck, 0, 8)

	switch provider {
	case "mock":
		checks = append(checks, onboardingCheck{
			ID:     "avatar_provider",
			Status: "warn",
			Label:  "Avatar backend is mock",
			Detail: "No avatar video will be streamed.",
			Fix:    "Set AVATAR_PROVIDER=heygen with HEYGEN_API_KEY.",
		})
	default:
		checks = append(checks, onboardingCheck{
			ID:     "avatar_provider",
			Status: "ok",
			Label:  "Avatar backend",
			Detail: provider,
		})
		checks = append(checks, s.heyGenChecks()...)
	}

	checks = append(checks,
		urlCheck("dialogue_webhook", "Dialogue webhook", "N8N_WEBHOOK_URL", s.cfg.N8NWebhookURL,
			"Voice chat and Load from n8n need a dialogue script."),
		urlCheck("dialog_step_webhook", "Step dialog webhook", "N8N_DIALOG_URL", s.cfg.N8NDialogURL,
			"Step-by-step dialog is unavailable."),
		urlCheck("notify_webhook", "Transcript webhook", "N8N_NOTIFY_URL", s.cfg.N8NNotifyURL,
			"Completed utterances are not forwarded."),
	)

	archive := s.archiveMode()
	switch archive {
	case "postgres":
		checks = append(checks, onboardingCheck{ID: "archive", Status: "ok", Label: "Transcript archive", Detail: "postgres"})
	default:
		checks = append(checks, onboardingCheck{
			ID:     "archive",
			Status: "warn",
			Label:  "Transcript archive",
			Detail: archive,
			Fix:    "Set DATABASE_URL to keep transcripts across restarts.",
		})
	}

	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		AvatarProvider: provider,
		ArchiveMode:    archive,
		Checks:         checks,
	})
}

func (s *Server) heyGenChecks() []onboardingCheck {
	out := make([]onboardingCheck, 0, 2)
	if strings.TrimSpace(s.cfg.HeyGenAPIKey) == "" {
		out = append(out, onboardingCheck{
			ID:     "heygen_key",
			Status: "error",
			Label:  "HeyGen API key",
			Detail: "HEYGEN_API_KEY is not set",
			Fix:    "Set HEYGEN_API_KEY or switch to AVATAR_PROVIDER=mock.",
		})
	} else {
		out = append(out, onboardingCheck{ID: "heygen_key", Status: "ok", Label: "HeyGen API key", Detail: "present"})
	}
	out = append(out, urlCheck("heygen_base_url", "HeyGen API base URL", "HEYGEN_BASE_API_URL", s.cfg.HeyGenBaseAPIURL,
		"Access tokens cannot be issued."))
	if out[len(out)-1].Status == "warn" {
		out[len(out)-1].Status = "error"
	}
	return out
}

// urlCheck reports whether an optional integration URL is set and well formed.
func urlCheck(id, label, env, raw, missingImpact string) onboardingCheck {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return onboardingCheck{
			ID:     id,
			Status: "warn",
			Label:  label,
			Detail: env + " is not set. " + missingImpact,
			Fix:    "Set " + env + ".",
		}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return onboardingCheck{
			ID:     id,
			Status: "error",
			Label:  label,
			Detail: env + " is not an http(s) URL",
			Fix:    "Set " + env + " to an absolute http(s) URL.",
		}
	}
	return onboardingCheck{ID: id, Status: "ok", Label: label, Detail: u.Host}
}
