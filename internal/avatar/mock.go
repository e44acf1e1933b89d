package avatar

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MockClient is a local stand-in for the avatar provider. It reports a stream
// as soon as the avatar starts and, when EchoSpeech is set, plays every speak
// request back as avatar talking events.
type MockClient struct {
	Emitter

	// EchoSpeech emits avatar talking events for each Speak call.
	EchoSpeech bool
	StartErr   error
	SpeakErr   error

	mu        sync.Mutex
	token     string
	started   bool
	listening bool
	muted     bool
	calls     []string
	spoken    []SpeakRequest
}

func NewMockClient(token string) *MockClient {
	return &MockClient{token: token, EchoSpeech: true, muted: true}
}

// MockFactory returns a Factory producing echoing mock clients.
func MockFactory() Factory {
	return func(token string) Client { return NewMockClient(token) }
}

func (c *MockClient) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *MockClient) CreateStartAvatar(ctx context.Context, req StartAvatarRequest) error {
	c.record("create_start_avatar")
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.StartErr != nil {
		return c.StartErr
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()

	c.Emit(Event{
		Type: EventStreamReady,
		Stream: &Stream{
			SessionID:   uuid.NewString(),
			URL:         "mock://" + strings.TrimSpace(req.AvatarName),
			AccessToken: c.token,
		},
	})
	c.Emit(Event{Type: EventConnectionQualityChanged, Quality: ConnectionQualityGood})
	return nil
}

func (c *MockClient) StopAvatar(_ context.Context) error {
	c.record("stop_avatar")
	c.mu.Lock()
	c.started = false
	c.listening = false
	c.mu.Unlock()
	return nil
}

func (c *MockClient) Speak(ctx context.Context, req SpeakRequest) error {
	c.record("speak")
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.SpeakErr != nil {
		return c.SpeakErr
	}
	c.mu.Lock()
	c.spoken = append(c.spoken, req)
	c.mu.Unlock()

	if !c.EchoSpeech {
		return nil
	}
	c.Emit(Event{Type: EventAvatarStartTalking})
	for _, word := range strings.SplitAfter(req.Text, " ") {
		if word == "" {
			continue
		}
		c.Emit(Event{Type: EventAvatarTalkingMessage, Message: word})
	}
	c.Emit(Event{Type: EventAvatarEndMessage})
	c.Emit(Event{Type: EventAvatarStopTalking})
	return nil
}

func (c *MockClient) StartListening(_ context.Context) error {
	c.record("start_listening")
	c.mu.Lock()
	c.listening = true
	c.mu.Unlock()
	return nil
}

func (c *MockClient) StopListening(_ context.Context) error {
	c.record("stop_listening")
	c.mu.Lock()
	c.listening = false
	c.mu.Unlock()
	return nil
}

func (c *MockClient) MuteInputAudio() {
	c.record("mute_input_audio")
	c.mu.Lock()
	c.muted = true
	c.mu.Unlock()
}

func (c *MockClient) UnmuteInputAudio() {
	c.record("unmute_input_audio")
	c.mu.Lock()
	c.muted = false
	c.mu.Unlock()
}

// Calls returns the names of client methods invoked so far.
func (c *MockClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Spoken returns every accepted speak request in call order.
func (c *MockClient) Spoken() []SpeakRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SpeakRequest(nil), c.spoken...)
}

func (c *MockClient) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

func (c *MockClient) InputMuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *MockClient) Token() string { return c.token }
