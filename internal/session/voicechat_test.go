package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
)

type fakeScripts struct {
	body []byte
	err  error
}

func (f fakeScripts) FetchScript(context.Context) ([]byte, error) {
	return f.body, f.err
}

func newTestVoiceChat(t *testing.T, source ScriptSource) (*VoiceChat, *State, *avatar.MockClient) {
	t.Helper()
	ctrl, state := newTestController(avatar.MockFactory())
	vc := NewVoiceChat(ctrl, source, func(string, ...any) {})
	mock := startMock(t, ctrl)
	return vc, state, mock
}

func spokenTexts(mock *avatar.MockClient) []string {
	var out []string
	for _, req := range mock.Spoken() {
		out = append(out, req.Text)
	}
	return out
}

func TestVoiceChatSpeaksScriptOnTurns(t *testing.T) {
	vc, state, mock := newTestVoiceChat(t, fakeScripts{body: []byte(`{"dialogue":["first line"," ","second line"]}`)})

	vc.Start(context.Background(), false)

	snap := state.Snapshot()
	if !snap.VoiceChat.Active || snap.VoiceChat.Loading || snap.VoiceChat.Muted {
		t.Fatalf("voice chat state = %+v, want active unmuted", snap.VoiceChat)
	}
	if !snap.Listening || !mock.Listening() {
		t.Fatalf("listening should be on")
	}
	if mock.InputMuted() {
		t.Fatalf("input should be unmuted")
	}
	if got := spokenTexts(mock); len(got) != 1 || got[0] != "first line" {
		t.Fatalf("spoken = %v, want [first line]", got)
	}

	mock.Emit(avatar.Event{Type: avatar.EventUserEndMessage})
	waitFor(t, func() bool { return len(mock.Spoken()) == 2 })
	if got := spokenTexts(mock); got[1] != "second line" {
		t.Fatalf("second spoken = %q, want second line", got[1])
	}

	mock.Emit(avatar.Event{Type: avatar.EventUserEndMessage})
	waitFor(t, func() bool { return vc.Cursor() == 2 })
	if got := len(mock.Spoken()); got != 2 {
		t.Fatalf("spoken after end of script = %d, want 2", got)
	}
}

// slowSpeaker delays its second Speak so an unordered turn would overtake it.
type slowSpeaker struct {
	*avatar.MockClient
	mu    sync.Mutex
	calls int
	order []string
}

func (c *slowSpeaker) Speak(_ context.Context, req avatar.SpeakRequest) error {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if n == 2 {
		time.Sleep(50 * time.Millisecond)
	}
	c.mu.Lock()
	c.order = append(c.order, req.Text)
	c.mu.Unlock()
	return nil
}

func (c *slowSpeaker) Order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

func TestVoiceChatTurnsSpeakInScriptOrder(t *testing.T) {
	client := &slowSpeaker{MockClient: avatar.NewMockClient("tok")}
	ctrl, _ := newTestController(func(string) avatar.Client { return client })
	vc := NewVoiceChat(ctrl, fakeScripts{body: []byte(`{"dialogue":["one","two","three","four"]}`)}, func(string, ...any) {})
	if _, err := ctrl.Start(context.Background(), avatar.StartAvatarRequest{}, "tok"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	vc.Start(context.Background(), true)
	for i := 0; i < 3; i++ {
		client.Emit(avatar.Event{Type: avatar.EventUserEndMessage})
	}

	waitFor(t, func() bool { return len(client.Order()) == 4 })
	want := []string{"one", "two", "three", "four"}
	for i, got := range client.Order() {
		if got != want[i] {
			t.Fatalf("spoken order = %v, want %v", client.Order(), want)
		}
	}
}

func TestVoiceChatFetchErrorLeavesInactive(t *testing.T) {
	vc, state, mock := newTestVoiceChat(t, fakeScripts{err: errors.New("webhook down")})

	vc.Start(context.Background(), true)

	snap := state.Snapshot()
	if snap.VoiceChat.Active || snap.VoiceChat.Loading {
		t.Fatalf("voice chat state = %+v, want inactive and not loading", snap.VoiceChat)
	}
	if mock.Listening() {
		t.Fatalf("listening should not start")
	}
}

func TestVoiceChatEmptyScriptSpeaksNothing(t *testing.T) {
	vc, state, mock := newTestVoiceChat(t, fakeScripts{body: []byte(`{"script":"   \n  "}`)})

	vc.Start(context.Background(), true)
	if !state.Snapshot().VoiceChat.Active {
		t.Fatalf("voice chat should be active")
	}
	if got := len(mock.Spoken()); got != 0 {
		t.Fatalf("spoken = %d, want 0", got)
	}
	mock.Emit(avatar.Event{Type: avatar.EventUserEndMessage})
	time.Sleep(20 * time.Millisecond)
	if got := len(mock.Spoken()); got != 0 {
		t.Fatalf("spoken after user turn = %d, want 0", got)
	}
}

func TestVoiceChatSpeakFailureUnsubscribes(t *testing.T) {
	vc, state, mock := newTestVoiceChat(t, fakeScripts{body: []byte(`{"dialogue":["a","b"]}`)})
	mock.SpeakErr = errors.New("speak failed")

	before := mock.ListenerCount(avatar.EventUserEndMessage)
	vc.Start(context.Background(), true)
	if state.Snapshot().VoiceChat.Active {
		t.Fatalf("voice chat should stay inactive")
	}
	if got := mock.ListenerCount(avatar.EventUserEndMessage); got != before {
		t.Fatalf("user_end_message listeners = %d, want %d", got, before)
	}
}

func TestVoiceChatStopAndMute(t *testing.T) {
	vc, state, mock := newTestVoiceChat(t, fakeScripts{body: []byte(`{"dialogue":["a"]}`)})
	vc.Start(context.Background(), true)
	if !state.Snapshot().VoiceChat.Muted || !mock.InputMuted() {
		t.Fatalf("voice chat should start muted")
	}

	vc.Unmute()
	if state.Snapshot().VoiceChat.Muted || mock.InputMuted() {
		t.Fatalf("Unmute() should unmute state and client")
	}
	vc.Mute()
	if !state.Snapshot().VoiceChat.Muted || !mock.InputMuted() {
		t.Fatalf("Mute() should mute state and client")
	}

	vc.Unmute()
	vc.Stop(context.Background())
	snap := state.Snapshot()
	if snap.VoiceChat.Active || !snap.VoiceChat.Muted || snap.Listening {
		t.Fatalf("state after Stop = %+v", snap)
	}
	if mock.Listening() {
		t.Fatalf("client should stop listening")
	}
}

func TestVoiceChatWithoutClientIsNoop(t *testing.T) {
	ctrl, state := newTestController(avatar.MockFactory())
	vc := NewVoiceChat(ctrl, fakeScripts{body: []byte(`{"dialogue":["a"]}`)}, func(string, ...any) {})

	vc.Start(context.Background(), false)
	vc.Mute()
	vc.Stop(context.Background())
	if snap := state.Snapshot(); snap.VoiceChat.Active || snap.VoiceChat.Loading {
		t.Fatalf("state = %+v, want untouched voice chat", snap.VoiceChat)
	}
}
