package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ppvaladez/avatar-interactive/internal/avatar"
	"github.com/ppvaladez/avatar-interactive/internal/dialogue"
	"github.com/ppvaladez/avatar-interactive/internal/observability"
	"github.com/ppvaladez/avatar-interactive/internal/transcript"
)

const archiveTimeout = 10 * time.Second

// Deps are the collaborators shared by every session slot.
type Deps struct {
	Factory  avatar.Factory
	Scripts  ScriptSource
	Steps    StepSource
	Notifier Notifier
	Archive  transcript.Store
	Metrics  *observability.Metrics
	Logf     func(format string, args ...any)
}

// Session bundles one UI session: its state container and the controllers
// that share its single avatar client.
type Session struct {
	ID        string
	UserID    string
	StartedAt time.Time

	State      *State
	Controller *Controller
	VoiceChat  *VoiceChat
	Steps      *StepDialog
	Player     *dialogue.Player

	archive   transcript.Store
	logf      func(format string, args ...any)
	archiving sync.WaitGroup

	mu             sync.Mutex
	lastActivityAt time.Time
}

func New(id, userID string, deps Deps) *Session {
	if deps.Logf == nil {
		deps.Logf = log.Printf
	}
	now := time.Now().UTC()
	s := &Session{
		ID:             id,
		UserID:         userID,
		StartedAt:      now,
		archive:        deps.Archive,
		logf:           deps.Logf,
		lastActivityAt: now,
	}
	s.State = NewState(StateOptions{
		Notifier:          deps.Notifier,
		OnMessageComplete: s.archiveMessage,
	})
	s.Controller = NewController(s.State, deps.Factory, ControllerOptions{
		Logf:       deps.Logf,
		Metrics:    deps.Metrics,
		OnActivity: s.Touch,
	})
	s.VoiceChat = NewVoiceChat(s.Controller, deps.Scripts, deps.Logf)
	s.Steps = NewStepDialog(s.Controller, deps.Steps, deps.Logf)
	s.Player = dialogue.NewPlayer(s.Controller.RepeatSync)
	return s
}

func (s *Session) archiveMessage(msg Message) {
	if s.archive == nil || msg.Content == "" {
		return
	}
	s.archiving.Add(1)
	go func() {
		defer s.archiving.Done()
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		err := s.archive.Save(ctx, transcript.Record{
			ID:        msg.ID,
			SessionID: s.ID,
			Sender:    string(msg.Sender),
			Content:   msg.Content,
		})
		if err != nil {
			s.logf("archive utterance failed session=%s: %v", s.ID, err)
		}
	}()
}

// Flush waits for pending archive writes.
func (s *Session) Flush() {
	s.archiving.Wait()
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivityAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) LastActivityAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivityAt
}
