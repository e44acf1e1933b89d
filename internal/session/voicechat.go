package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
	"github.com/ppvaladez/avatar-interactive/internal/dialogue"
)

const turnSpeakTimeout = 30 * time.Second

// ScriptSource supplies the raw dialogue payload for a voice chat.
type ScriptSource interface {
	FetchScript(ctx context.Context) ([]byte, error)
}

// VoiceChat runs turn-taking over a fetched script: the first line is spoken
// on start, then one more line each time the user finishes an utterance.
type VoiceChat struct {
	ctrl   *Controller
	state  *State
	source ScriptSource
	logf   func(format string, args ...any)

	// speakMu orders turns: a line is picked and spoken before the next one.
	speakMu sync.Mutex

	mu     sync.Mutex
	lines  []string
	cursor int
	subs   *subscriptions
}

func NewVoiceChat(ctrl *Controller, source ScriptSource, logf func(format string, args ...any)) *VoiceChat {
	if logf == nil {
		logf = log.Printf
	}
	vc := &VoiceChat{ctrl: ctrl, state: ctrl.state, source: source, logf: logf}
	ctrl.setVoiceChat(vc)
	return vc
}

// Start loads the script and begins listening. Failures are logged and leave
// voice chat inactive; the loading flag is always cleared.
func (v *VoiceChat) Start(ctx context.Context, muted bool) {
	client := v.ctrl.Client()
	if client == nil {
		return
	}
	v.state.SetVoiceChatLoading(true)
	defer v.state.SetVoiceChatLoading(false)

	if v.source == nil {
		v.logf("voice chat: no dialogue source configured")
		return
	}
	body, err := v.source.FetchScript(ctx)
	if err != nil {
		v.logf("voice chat: load dialogue failed: %v", err)
		return
	}
	script, err := dialogue.ParsePayload(body)
	if err != nil {
		v.logf("voice chat: %v", err)
		return
	}

	v.mu.Lock()
	v.lines = script.Lines
	v.cursor = 0
	v.subs.Close()
	v.subs = subscribe(client)
	v.subs.on(avatar.EventUserEndMessage, func(avatar.Event) {
		go func() {
			turnCtx, cancel := context.WithTimeout(context.Background(), turnSpeakTimeout)
			defer cancel()
			if err := v.playNext(turnCtx, client); err != nil {
				v.logf("voice chat: speak next line failed: %v", err)
			}
		}()
	})
	v.mu.Unlock()

	if err := client.StartListening(ctx); err != nil {
		v.logf("voice chat: start listening failed: %v", err)
		v.unsubscribe()
		return
	}
	v.state.SetListening(true)
	if muted {
		client.MuteInputAudio()
	} else {
		client.UnmuteInputAudio()
	}

	if err := v.playNext(ctx, client); err != nil {
		v.logf("voice chat: speak first line failed: %v", err)
		v.unsubscribe()
		return
	}
	v.state.SetVoiceChatActive(true)
	v.state.SetMuted(muted)
}

// playNext speaks the line at the cursor and advances it. Past the end of
// the script it does nothing.
func (v *VoiceChat) playNext(ctx context.Context, client avatar.Client) error {
	v.speakMu.Lock()
	defer v.speakMu.Unlock()

	v.mu.Lock()
	if v.cursor >= len(v.lines) {
		v.mu.Unlock()
		return nil
	}
	line := v.lines[v.cursor]
	v.cursor++
	v.mu.Unlock()

	return client.Speak(ctx, avatar.SpeakRequest{
		Text:     line,
		TaskType: avatar.TaskTypeTalk,
		TaskMode: avatar.TaskModeAsync,
	})
}

func (v *VoiceChat) unsubscribe() {
	v.mu.Lock()
	v.subs.Close()
	v.subs = nil
	v.mu.Unlock()
}

// Stop ends turn-taking and forces the microphone muted.
func (v *VoiceChat) Stop(ctx context.Context) {
	client := v.ctrl.Client()
	if client == nil {
		return
	}
	v.unsubscribe()
	if err := client.StopListening(ctx); err != nil {
		v.logf("voice chat: stop listening failed: %v", err)
	}
	v.state.SetListening(false)
	v.state.SetVoiceChatActive(false)
	v.state.SetMuted(true)
}

func (v *VoiceChat) Mute() {
	client := v.ctrl.Client()
	if client == nil {
		return
	}
	client.MuteInputAudio()
	v.state.SetMuted(true)
}

func (v *VoiceChat) Unmute() {
	client := v.ctrl.Client()
	if client == nil {
		return
	}
	client.UnmuteInputAudio()
	v.state.SetMuted(false)
}

// Cursor reports the index of the next line to speak.
func (v *VoiceChat) Cursor() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursor
}
