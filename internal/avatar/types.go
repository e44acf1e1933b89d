// Package avatar is the boundary to the streaming-avatar provider: the client
// surface the session controllers drive, the events it emits, and the
// server-side token exchange.
package avatar

import "context"

type EventType string

const (
	EventStreamReady              EventType = "stream_ready"
	EventStreamDisconnected       EventType = "stream_disconnected"
	EventConnectionQualityChanged EventType = "connection_quality_changed"
	EventUserStart                EventType = "user_start"
	EventUserStop                 EventType = "user_stop"
	EventAvatarStartTalking       EventType = "avatar_start_talking"
	EventAvatarStopTalking        EventType = "avatar_stop_talking"
	EventUserTalkingMessage       EventType = "user_talking_message"
	EventAvatarTalkingMessage     EventType = "avatar_talking_message"
	EventUserEndMessage           EventType = "user_end_message"
	EventAvatarEndMessage         EventType = "avatar_end_message"
)

// ConnectionQuality is mirrored read-only from the provider.
type ConnectionQuality string

const (
	ConnectionQualityUnknown ConnectionQuality = "UNKNOWN"
	ConnectionQualityGood    ConnectionQuality = "GOOD"
	ConnectionQualityBad     ConnectionQuality = "BAD"
)

type TaskType string

const (
	TaskTypeTalk   TaskType = "talk"
	TaskTypeRepeat TaskType = "repeat"
)

type TaskMode string

const (
	TaskModeSync  TaskMode = "sync"
	TaskModeAsync TaskMode = "async"
)

// Stream describes where the browser attaches to the avatar's media.
type Stream struct {
	SessionID        string `json:"session_id"`
	URL              string `json:"url"`
	AccessToken      string `json:"access_token"`
	RealtimeEndpoint string `json:"realtime_endpoint,omitempty"`
}

// Event is a single provider callback.
type Event struct {
	Type    EventType
	Message string
	Stream  *Stream
	Quality ConnectionQuality
}

type Handler func(Event)

type ListenerID uint64

type VoiceSetting struct {
	VoiceID string  `json:"voice_id,omitempty"`
	Rate    float64 `json:"rate,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
}

// StartAvatarRequest configures a new avatar session.
type StartAvatarRequest struct {
	AvatarName          string        `json:"avatar_name"`
	Quality             string        `json:"quality,omitempty"`
	Voice               *VoiceSetting `json:"voice,omitempty"`
	Language            string        `json:"language,omitempty"`
	KnowledgeID         string        `json:"knowledge_id,omitempty"`
	KnowledgeBase       string        `json:"knowledge_base,omitempty"`
	ActivityIdleTimeout int           `json:"activity_idle_timeout,omitempty"`
	DisableIdleTimeout  bool          `json:"disable_idle_timeout,omitempty"`
}

type SpeakRequest struct {
	Text     string   `json:"text"`
	TaskType TaskType `json:"task_type"`
	TaskMode TaskMode `json:"task_mode"`
}

// Client is the avatar provider surface consumed by the session controllers.
type Client interface {
	CreateStartAvatar(ctx context.Context, req StartAvatarRequest) error
	StopAvatar(ctx context.Context) error
	Speak(ctx context.Context, req SpeakRequest) error
	StartListening(ctx context.Context) error
	StopListening(ctx context.Context) error
	MuteInputAudio()
	UnmuteInputAudio()
	On(t EventType, h Handler) ListenerID
	Off(t EventType, id ListenerID)
}

// Factory builds a client bound to a session token.
type Factory func(token string) Client
