package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ppvaladez/avatar-interactive/internal/session"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientControl MessageType = "client_control"
	TypeStateSnapshot MessageType = "state_snapshot"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

// Control actions a UI may send over the session socket.
const (
	ActionStop         = "stop"
	ActionStartVoice   = "start_voice_chat"
	ActionStopVoice    = "stop_voice_chat"
	ActionMute         = "mute"
	ActionUnmute       = "unmute"
	ActionSendText     = "send_text"
	ActionDialogNext   = "dialog_next"
	ActionDialogReset  = "dialog_reset"
	ActionPlayDialogue = "play_dialogue"
)

var (
	ErrUnsupportedType   = errors.New("unsupported message type")
	ErrUnsupportedAction = errors.New("unsupported control action")
)

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Text      string      `json:"text,omitempty"`
	Muted     *bool       `json:"muted,omitempty"`
	Label     string      `json:"label,omitempty"`
}

type StateSnapshot struct {
	Type      MessageType      `json:"type"`
	SessionID string           `json:"session_id"`
	State     session.Snapshot `json:"state"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func NewStateSnapshot(sessionID string, snap session.Snapshot) StateSnapshot {
	return StateSnapshot{Type: TypeStateSnapshot, SessionID: sessionID, State: snap}
}

func NewSystemEvent(sessionID, code, detail string) SystemEvent {
	return SystemEvent{Type: TypeSystemEvent, SessionID: sessionID, Code: code, Detail: detail}
}

func NewErrorEvent(sessionID, code, detail string, retryable bool) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, SessionID: sessionID, Code: code, Detail: detail, Retryable: retryable}
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Action = strings.TrimSpace(msg.Action)
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		if !knownAction(msg.Action) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, msg.Action)
		}
		if msg.Action == ActionSendText && strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_control: send_text requires text")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func knownAction(action string) bool {
	switch action {
	case ActionStop, ActionStartVoice, ActionStopVoice, ActionMute, ActionUnmute,
		ActionSendText, ActionDialogNext, ActionDialogReset, ActionPlayDialogue:
		return true
	}
	return false
}
