package session

import (
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
)

// CreateRequest defines payload for creating a new session slot.
type CreateRequest struct {
	UserID string `json:"user_id"`
}

// CreateResponse returns created session metadata.
type CreateResponse struct {
	SessionID       string       `json:"session_id"`
	UserID          string       `json:"user_id"`
	SessionState    SessionState `json:"session_state"`
	StartedAt       time.Time    `json:"started_at"`
	InactivityTTLMS int64        `json:"inactivity_ttl_ms"`
}

// StartRequest opens the avatar for a session slot. Token may be omitted
// once the slot already holds a client.
type StartRequest struct {
	Token  string                    `json:"token"`
	Avatar avatar.StartAvatarRequest `json:"avatar"`
}
